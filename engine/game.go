package engine

// RenderCore is the frame pipeline the loop drives: resize when the window
// changes, then update and draw once per unpaused iteration.
type RenderCore interface {
	OnResize(width, height uint32) error
	OnUpdate(totalTime, deltaTime float64) error
	OnDraw() error
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the renderer exists and before it is built, so the
// game can create its geometry, textures and render items.
type Initialize func(e *Engine) error

// Update runs before the render core writes the frame's constants.
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
