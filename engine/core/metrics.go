package core

import (
	"fmt"

	"github.com/spaghettifunk/ringrender/engine/containers"
)

const AVG_COUNT = 30

// FrameStats tracks frames per second over one-second windows and a rolling
// average of the last AVG_COUNT frame times.
type FrameStats struct {
	samples     *containers.RingQueue[float64]
	frames      int
	windowStart float64
	fps         float64
	mspf        float64
}

func NewFrameStats() *FrameStats {
	return &FrameStats{
		samples: containers.NewRingQueue[float64](AVG_COUNT),
	}
}

// Tick records one frame. total is the clock's elapsed time and delta the
// frame time, both in seconds. Returns true when a one-second window closed
// and FPS/MSPerFrame were refreshed.
func (m *FrameStats) Tick(total, delta float64) bool {
	if m.samples.IsFull() {
		_, _ = m.samples.Dequeue()
	}
	_ = m.samples.Enqueue(delta * 1000.0)

	m.frames++
	if total-m.windowStart < 1.0 {
		return false
	}
	m.fps = float64(m.frames)
	if m.fps > 0 {
		m.mspf = 1000.0 / m.fps
	}
	m.frames = 0
	m.windowStart += 1.0
	// catch up after long stalls so the next window is not closed instantly
	if total-m.windowStart >= 1.0 {
		m.windowStart = total
	}
	return true
}

func (m *FrameStats) FPS() float64 {
	return m.fps
}

func (m *FrameStats) MSPerFrame() float64 {
	return m.mspf
}

// AverageFrameMS is the mean of the retained frame-time samples.
func (m *FrameStats) AverageFrameMS() float64 {
	n := m.samples.Len()
	if n == 0 {
		return 0
	}
	sum := 0.0
	m.samples.Each(func(v float64) {
		sum += v
	})
	return sum / float64(n)
}

// Title formats the window caption.
func (m *FrameStats) Title(name string) string {
	return fmt.Sprintf("%s    fps: %.0f   mspf: %.3f", name, m.fps, m.mspf)
}
