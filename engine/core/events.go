package core

type EventContext struct {
	Data struct {
		I32 [4]int32
		U32 [4]uint32
		F32 [4]float32
		U16 [8]uint16
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed. U16[0] = key code.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released. U16[0] = key code.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Mouse button pressed. U16[0] = button, I32[0..1] = x, y.
	EVENT_CODE_BUTTON_PRESSED SystemEventCode = 0x04

	// Mouse button released. U16[0] = button, I32[0..1] = x, y.
	EVENT_CODE_BUTTON_RELEASED SystemEventCode = 0x05

	// Mouse moved. I32[0..1] = x, y.
	EVENT_CODE_MOUSE_MOVED SystemEventCode = 0x06

	// Framebuffer resized or minimized. U32[0..1] = width, height.
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// Window focus changed. U32[0] = 1 when active.
	EVENT_CODE_ACTIVATED SystemEventCode = 0x09

	// The user started (U32[0] = 1) or finished (U32[0] = 0) an interactive resize.
	EVENT_CODE_RESIZING SystemEventCode = 0x0A

	// Shader binaries changed on disk.
	EVENT_CODE_SHADERS_CHANGED SystemEventCode = 0x10

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events synchronously on the calling thread.
type EventBus struct {
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{registered: map[SystemEventCode][]*registeredEvent{}}
}

// Register listens for code. A listener can be registered once per code;
// duplicates return false.
func (b *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	for _, e := range b.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	b.registered[code] = append(b.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes listener from code. Returns false if it was not registered.
func (b *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	events := b.registered[code]
	for i, e := range events {
		if e.listener == listener {
			b.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire sends data to listeners of code in registration order. A listener
// that returns true stops propagation.
func (b *EventBus) Fire(code SystemEventCode, sender interface{}, data EventContext) bool {
	for _, e := range b.registered[code] {
		if e.callback(code, sender, e.listener, data) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (b *EventBus) Shutdown() {
	b.registered = map[SystemEventCode][]*registeredEvent{}
}
