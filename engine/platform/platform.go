package platform

import (
	"unsafe"

	"github.com/spaghettifunk/ringrender/engine/core"
)

// MinWindowSize is the smallest client area a window can be dragged to.
const MinWindowSize = 200

// Window is the OS side of the frame loop. Input and window changes are
// forwarded to the event bus the window was created with.
type Window interface {
	// PumpMessages processes pending OS events. It returns false once the
	// window wants to close.
	PumpMessages() bool
	FramebufferSize() (uint32, uint32)
	SetTitle(title string)
	// Handle is the native window, or nil when there is none.
	Handle() unsafe.Pointer
	Close() error
}

type Config struct {
	Title  string
	X      int
	Y      int
	Width  uint32
	Height uint32
}

func fireResized(bus *core.EventBus, sender interface{}, width, height uint32) {
	ctx := core.EventContext{}
	ctx.Data.U32[0] = width
	ctx.Data.U32[1] = height
	bus.Fire(core.EVENT_CODE_RESIZED, sender, ctx)
}

func fireActivated(bus *core.EventBus, sender interface{}, active bool) {
	ctx := core.EventContext{}
	if active {
		ctx.Data.U32[0] = 1
	}
	bus.Fire(core.EVENT_CODE_ACTIVATED, sender, ctx)
}
