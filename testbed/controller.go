package testbed

import (
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer/components"
)

const (
	// MoveSpeed is in world units per second.
	MoveSpeed float32 = 10.0
	// LookDegreesPerPixel turns the camera while the left button drags.
	LookDegreesPerPixel float32 = 0.25
)

// CameraController walks the camera with W/S, strafes with A/D, flies with
// Q/E and looks around while the left mouse button is held.
type CameraController struct {
	camera *components.Camera
	input  *core.InputState
	speed  float32
	look   float32
}

func NewCameraController(camera *components.Camera, input *core.InputState) *CameraController {
	return &CameraController{
		camera: camera,
		input:  input,
		speed:  MoveSpeed,
		look:   LookDegreesPerPixel,
	}
}

func (c *CameraController) Update(deltaTime float64) {
	step := c.speed * float32(deltaTime)

	if c.input.IsKeyDown(core.KEY_W) {
		c.camera.MoveForward(step)
	}
	if c.input.IsKeyDown(core.KEY_S) {
		c.camera.MoveBackward(step)
	}
	if c.input.IsKeyDown(core.KEY_A) {
		c.camera.MoveLeft(step)
	}
	if c.input.IsKeyDown(core.KEY_D) {
		c.camera.MoveRight(step)
	}
	if c.input.IsKeyDown(core.KEY_Q) {
		c.camera.MoveDown(step)
	}
	if c.input.IsKeyDown(core.KEY_E) {
		c.camera.MoveUp(step)
	}

	// A drag needs the button held on both sides of the frame.
	if c.input.IsButtonDown(core.BUTTON_LEFT) && c.input.WasButtonDown(core.BUTTON_LEFT) {
		x, y := c.input.MousePosition()
		px, py := c.input.PreviousMousePosition()
		dx, dy := float32(x-px), float32(y-py)
		if dx != 0 {
			c.camera.Yaw(math.DegToRad(c.look * dx))
		}
		if dy != 0 {
			c.camera.Pitch(math.DegToRad(c.look * dy))
		}
	}
}
