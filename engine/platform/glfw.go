package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// GLFWWindow is a desktop window with no client API attached; the Vulkan
// device creates its surface through it.
type GLFWWindow struct {
	window *glfw.Window
	bus    *core.EventBus
	input  *core.InputState

	// size before the window was iconified
	restoreWidth  uint32
	restoreHeight uint32
}

func NewGLFWWindow(cfg Config, bus *core.EventBus, input *core.InputState) (*GLFWWindow, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, fmt.Errorf("%w: glfw reports no Vulkan loader", core.ErrNoAdapter)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	w := &GLFWWindow{window: window, bus: bus, input: input}

	window.SetSizeLimits(MinWindowSize, MinWindowSize, glfw.DontCare, glfw.DontCare)
	window.SetKeyCallback(w.onKey)
	window.SetMouseButtonCallback(w.onMouseButton)
	window.SetCursorPosCallback(w.onCursorPos)
	window.SetFramebufferSizeCallback(w.onFramebufferSize)
	window.SetFocusCallback(w.onFocus)
	window.SetIconifyCallback(w.onIconify)
	window.SetCloseCallback(w.onClose)
	window.SetPos(cfg.X, cfg.Y)
	window.Show()

	core.LogInfo("window created: %s (%dx%d)", cfg.Title, cfg.Width, cfg.Height)
	return w, nil
}

func (w *GLFWWindow) PumpMessages() bool {
	glfw.PollEvents()
	return !w.window.ShouldClose()
}

func (w *GLFWWindow) FramebufferSize() (uint32, uint32) {
	width, height := w.window.GetFramebufferSize()
	return uint32(width), uint32(height)
}

func (w *GLFWWindow) SetTitle(title string) {
	w.window.SetTitle(title)
}

func (w *GLFWWindow) Handle() unsafe.Pointer {
	return unsafe.Pointer(w.window.Handle())
}

func (w *GLFWWindow) Close() error {
	w.window.Destroy()
	glfw.Terminate()
	return nil
}

func (w *GLFWWindow) InstanceProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *GLFWWindow) RequiredInstanceExtensions() []string {
	return w.window.GetRequiredInstanceExtensions()
}

func (w *GLFWWindow) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, fmt.Errorf("create window surface: %w", err)
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (w *GLFWWindow) onKey(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	code, ok := translateKey(key)
	if !ok {
		return
	}
	w.input.ProcessKey(code, action != glfw.Release)
}

func (w *GLFWWindow) onMouseButton(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	var b core.Button
	switch button {
	case glfw.MouseButtonLeft:
		b = core.BUTTON_LEFT
	case glfw.MouseButtonRight:
		b = core.BUTTON_RIGHT
	case glfw.MouseButtonMiddle:
		b = core.BUTTON_MIDDLE
	default:
		return
	}
	w.input.ProcessButton(b, action == glfw.Press)
}

func (w *GLFWWindow) onCursorPos(_ *glfw.Window, x, y float64) {
	w.input.ProcessMouseMove(int32(x), int32(y))
}

func (w *GLFWWindow) onFramebufferSize(_ *glfw.Window, width, height int) {
	fireResized(w.bus, w, uint32(width), uint32(height))
}

func (w *GLFWWindow) onFocus(_ *glfw.Window, focused bool) {
	fireActivated(w.bus, w, focused)
}

// onIconify reports minimization as a zero-area resize, which not every
// platform does on its own.
func (w *GLFWWindow) onIconify(_ *glfw.Window, iconified bool) {
	if iconified {
		w.restoreWidth, w.restoreHeight = w.FramebufferSize()
		fireResized(w.bus, w, 0, 0)
		return
	}
	width, height := w.FramebufferSize()
	if width == 0 || height == 0 {
		width, height = w.restoreWidth, w.restoreHeight
	}
	fireResized(w.bus, w, width, height)
}

func (w *GLFWWindow) onClose(_ *glfw.Window) {
	w.bus.Fire(core.EVENT_CODE_APPLICATION_QUIT, w, core.EventContext{})
}

// translateKey maps a glfw key onto the virtual-key numbering of
// core.KeyCode.
func translateKey(key glfw.Key) (core.KeyCode, bool) {
	switch {
	case key >= glfw.KeyA && key <= glfw.KeyZ:
		return core.KEY_A + core.KeyCode(key-glfw.KeyA), true
	case key >= glfw.Key0 && key <= glfw.Key9:
		return core.KeyCode('0' + (key - glfw.Key0)), true
	case key >= glfw.KeyF1 && key <= glfw.KeyF4:
		return core.KEY_F1 + core.KeyCode(key-glfw.KeyF1), true
	}
	switch key {
	case glfw.KeyEscape:
		return core.KEY_ESCAPE, true
	case glfw.KeySpace:
		return core.KEY_SPACE, true
	case glfw.KeyEnter:
		return core.KEY_ENTER, true
	case glfw.KeyTab:
		return core.KEY_TAB, true
	case glfw.KeyBackspace:
		return core.KEY_BACKSPACE, true
	case glfw.KeyLeftShift, glfw.KeyRightShift:
		return core.KEY_SHIFT, true
	case glfw.KeyPause:
		return core.KEY_PAUSE, true
	case glfw.KeyLeft:
		return core.KEY_LEFT, true
	case glfw.KeyUp:
		return core.KEY_UP, true
	case glfw.KeyRight:
		return core.KEY_RIGHT, true
	case glfw.KeyDown:
		return core.KEY_DOWN, true
	}
	return 0, false
}
