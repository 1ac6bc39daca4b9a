package platform

import (
	"sort"
	"unsafe"

	"github.com/spaghettifunk/ringrender/engine/core"
)

type scriptedResize struct {
	frame         int
	width, height uint32
}

// HeadlessWindow has a fixed client area and no OS window. It asks to
// close after a set number of pumps, and can replay resizes at given
// frames.
type HeadlessWindow struct {
	bus     *core.EventBus
	width   uint32
	height  uint32
	frames  int
	pumped  int
	closed  bool
	title   string
	resizes []scriptedResize
}

// NewHeadlessWindow creates a window that closes after frames pumps, or
// never when frames is 0.
func NewHeadlessWindow(cfg Config, bus *core.EventBus, frames int) *HeadlessWindow {
	core.LogInfo("headless window: %dx%d, frames=%d", cfg.Width, cfg.Height, frames)
	return &HeadlessWindow{
		bus:    bus,
		width:  cfg.Width,
		height: cfg.Height,
		frames: frames,
		title:  cfg.Title,
	}
}

// ScheduleResize fires a resize during the pump that starts frame.
func (w *HeadlessWindow) ScheduleResize(frame int, width, height uint32) {
	w.resizes = append(w.resizes, scriptedResize{frame: frame, width: width, height: height})
	sort.SliceStable(w.resizes, func(i, j int) bool { return w.resizes[i].frame < w.resizes[j].frame })
}

func (w *HeadlessWindow) PumpMessages() bool {
	if w.closed || (w.frames > 0 && w.pumped >= w.frames) {
		return false
	}
	for len(w.resizes) > 0 && w.resizes[0].frame <= w.pumped {
		r := w.resizes[0]
		w.resizes = w.resizes[1:]
		w.width, w.height = r.width, r.height
		fireResized(w.bus, w, r.width, r.height)
	}
	w.pumped++
	return true
}

// Pumped is the number of successful pumps so far.
func (w *HeadlessWindow) Pumped() int {
	return w.pumped
}

func (w *HeadlessWindow) FramebufferSize() (uint32, uint32) {
	return w.width, w.height
}

func (w *HeadlessWindow) SetTitle(title string) {
	w.title = title
}

func (w *HeadlessWindow) Title() string {
	return w.title
}

func (w *HeadlessWindow) Handle() unsafe.Pointer {
	return nil
}

func (w *HeadlessWindow) Close() error {
	w.closed = true
	return nil
}
