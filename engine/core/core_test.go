package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct {
	t time.Time
}

func (f *fakeNow) now() time.Time { return f.t }

func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func TestClockExcludesStoppedTime(t *testing.T) {
	fn := &fakeNow{t: time.Unix(1000, 0)}
	c := NewClock()
	c.now = fn.now

	c.Start()
	fn.advance(100 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 0.1, c.Delta(), 1e-9)

	c.Stop()
	fn.advance(5 * time.Second)
	c.Update()
	assert.Zero(t, c.Delta())
	assert.InDelta(t, 0.1, c.Elapsed(), 1e-9)

	c.Resume()
	fn.advance(50 * time.Millisecond)
	c.Update()
	assert.InDelta(t, 0.05, c.Delta(), 1e-9)
	assert.InDelta(t, 0.15, c.Elapsed(), 1e-9)
}

func TestFrameStatsWindow(t *testing.T) {
	s := NewFrameStats()
	total := 0.0
	closed := 0
	for i := 0; i < 130; i++ {
		total += 1.0 / 60.0
		if s.Tick(total, 1.0/60.0) {
			closed++
		}
	}
	assert.Equal(t, 2, closed)
	assert.InDelta(t, 60, s.FPS(), 1)
	assert.InDelta(t, 1000.0/60.0, s.MSPerFrame(), 0.5)
	assert.InDelta(t, 1000.0/60.0, s.AverageFrameMS(), 1e-6)
	assert.Contains(t, s.Title("demo"), "fps: ")
	assert.Contains(t, s.Title("demo"), "mspf: ")
}

func TestDeviceErrorIsFatal(t *testing.T) {
	err := fmt.Errorf("draw: %w", NewDeviceError("present", ErrDeviceRemoved))
	assert.True(t, IsFatal(err))
	assert.True(t, errors.Is(err, ErrDeviceRemoved))

	var de *DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "present", de.Op)

	assert.True(t, IsFatal(Violation("draw before bind")))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	var got []string
	a, b := &struct{ n int }{1}, &struct{ n int }{2}

	require.True(t, bus.Register(EVENT_CODE_RESIZED, a, func(code SystemEventCode, _ interface{}, _ interface{}, data EventContext) bool {
		got = append(got, fmt.Sprintf("a %d", data.Data.U32[0]))
		return false
	}))
	require.True(t, bus.Register(EVENT_CODE_RESIZED, b, func(code SystemEventCode, _ interface{}, _ interface{}, data EventContext) bool {
		got = append(got, "b")
		return true
	}))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, a, nil))

	ctx := EventContext{}
	ctx.Data.U32[0] = 640
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"a 640", "b"}, got)

	require.True(t, bus.Unregister(EVENT_CODE_RESIZED, b))
	assert.False(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.False(t, bus.Unregister(EVENT_CODE_RESIZED, b))
}

func TestInputStateFiresOnChange(t *testing.T) {
	bus := NewEventBus()
	pressed := 0
	bus.Register(EVENT_CODE_KEY_PRESSED, t, func(SystemEventCode, interface{}, interface{}, EventContext) bool {
		pressed++
		return true
	})
	in := NewInputState(bus)
	in.ProcessKey(KEY_W, true)
	in.ProcessKey(KEY_W, true)
	assert.Equal(t, 1, pressed)
	assert.True(t, in.IsKeyDown(KEY_W))
	assert.False(t, in.WasKeyDown(KEY_W))
	in.Update()
	assert.True(t, in.WasKeyDown(KEY_W))

	in.ProcessMouseMove(10, 20)
	in.Update()
	in.ProcessMouseMove(14, 18)
	x, y := in.MousePosition()
	px, py := in.PreviousMousePosition()
	assert.Equal(t, int32(4), x-px)
	assert.Equal(t, int32(-2), y-py)
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	require.NoError(t, SetLogLevel(""))
	assert.Error(t, SetLogLevel("chatty"))
	require.NoError(t, SetLogLevel("info"))
}
