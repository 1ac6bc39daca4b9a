package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_SHIFT     KeyCode = 0x10
	KEY_PAUSE     KeyCode = 0x13
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_A         KeyCode = 0x41
	KEY_B         KeyCode = 0x42
	KEY_C         KeyCode = 0x43
	KEY_D         KeyCode = 0x44
	KEY_E         KeyCode = 0x45
	KEY_F         KeyCode = 0x46
	KEY_G         KeyCode = 0x47
	KEY_H         KeyCode = 0x48
	KEY_I         KeyCode = 0x49
	KEY_J         KeyCode = 0x4A
	KEY_K         KeyCode = 0x4B
	KEY_L         KeyCode = 0x4C
	KEY_M         KeyCode = 0x4D
	KEY_N         KeyCode = 0x4E
	KEY_O         KeyCode = 0x4F
	KEY_P         KeyCode = 0x50
	KEY_Q         KeyCode = 0x51
	KEY_R         KeyCode = 0x52
	KEY_S         KeyCode = 0x53
	KEY_T         KeyCode = 0x54
	KEY_U         KeyCode = 0x55
	KEY_V         KeyCode = 0x56
	KEY_W         KeyCode = 0x57
	KEY_X         KeyCode = 0x58
	KEY_Y         KeyCode = 0x59
	KEY_Z         KeyCode = 0x5A
	KEY_F1        KeyCode = 0x70
	KEY_F2        KeyCode = 0x71
	KEY_F3        KeyCode = 0x72
	KEY_F4        KeyCode = 0x73

	KEYS_MAX_KEYS KeyCode = 0xFF
)

type keyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

type mouseState struct {
	X       int32
	Y       int32
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// InputState holds current and previous keyboard/mouse state and fires
// events on the bus when something changes.
type InputState struct {
	bus              *EventBus
	KeyboardCurrent  keyboardState
	KeyboardPrevious keyboardState
	MouseCurrent     mouseState
	MousePrevious    mouseState
}

func NewInputState(bus *EventBus) *InputState {
	return &InputState{bus: bus}
}

// Update copies current state to previous. Called once per frame after the
// frame consumed the input.
func (s *InputState) Update() {
	s.KeyboardPrevious = s.KeyboardCurrent
	s.MousePrevious = s.MouseCurrent
}

func (s *InputState) IsKeyDown(key KeyCode) bool {
	return s.KeyboardCurrent.Keys[key]
}

func (s *InputState) IsKeyUp(key KeyCode) bool {
	return !s.KeyboardCurrent.Keys[key]
}

func (s *InputState) WasKeyDown(key KeyCode) bool {
	return s.KeyboardPrevious.Keys[key]
}

func (s *InputState) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS || s.KeyboardCurrent.Keys[key] == pressed {
		return
	}
	s.KeyboardCurrent.Keys[key] = pressed

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	ctx := EventContext{}
	ctx.Data.U16[0] = uint16(key)
	s.fire(code, ctx)
}

func (s *InputState) IsButtonDown(button Button) bool {
	return s.MouseCurrent.Buttons[button]
}

func (s *InputState) WasButtonDown(button Button) bool {
	return s.MousePrevious.Buttons[button]
}

func (s *InputState) MousePosition() (int32, int32) {
	return s.MouseCurrent.X, s.MouseCurrent.Y
}

func (s *InputState) PreviousMousePosition() (int32, int32) {
	return s.MousePrevious.X, s.MousePrevious.Y
}

func (s *InputState) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS || s.MouseCurrent.Buttons[button] == pressed {
		return
	}
	s.MouseCurrent.Buttons[button] = pressed

	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	ctx := EventContext{}
	ctx.Data.U16[0] = uint16(button)
	ctx.Data.I32[0] = s.MouseCurrent.X
	ctx.Data.I32[1] = s.MouseCurrent.Y
	s.fire(code, ctx)
}

func (s *InputState) ProcessMouseMove(x, y int32) {
	if s.MouseCurrent.X == x && s.MouseCurrent.Y == y {
		return
	}
	s.MouseCurrent.X = x
	s.MouseCurrent.Y = y

	ctx := EventContext{}
	ctx.Data.I32[0] = x
	ctx.Data.I32[1] = y
	s.fire(EVENT_CODE_MOUSE_MOVED, ctx)
}

func (s *InputState) fire(code SystemEventCode, ctx EventContext) {
	if s.bus != nil {
		s.bus.Fire(code, s, ctx)
	}
}
