package components

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/ringrender/engine/math"
)

func TestCameraDefaults(t *testing.T) {
	c := NewCamera()
	assert.InDelta(t, 0.25*math.K_PI, c.FovY, 1e-6)
	assert.Equal(t, float32(1), c.NearZ)
	assert.Equal(t, float32(1000), c.FarZ)
	assert.True(t, c.Forward().Compare(math.NewVec3Forward(), 1e-6))
}

func TestCameraPitchClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	assert.InDelta(t, pitchLimit, c.EulerRotation.X, 1e-6)
	c.Pitch(-20)
	assert.InDelta(t, -pitchLimit, c.EulerRotation.X, 1e-6)
}

func TestCameraViewMovesWorldOpposite(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(0, 2, -15))
	origin := math.Vec3{}.Transform(c.GetView())
	assert.InDelta(t, 0, origin.X, 1e-5)
	assert.InDelta(t, -2, origin.Y, 1e-5)
	assert.InDelta(t, 15, origin.Z, 1e-5)

	c.MoveForward(5)
	assert.True(t, c.IsDirty)
	origin = math.Vec3{}.Transform(c.GetView())
	assert.InDelta(t, 10, origin.Z, 1e-5)
	assert.False(t, c.IsDirty)
}

func TestCameraLookAt(t *testing.T) {
	c := NewCamera()
	eye := math.NewVec3(0, 2, -15)
	c.LookAt(eye, math.Vec3{})
	target := math.Vec3{}.Transform(c.GetView())
	assert.InDelta(t, 0, target.X, 1e-4)
	assert.InDelta(t, 0, target.Y, 1e-4)
	assert.InDelta(t, eye.Length(), target.Z, 1e-4)
}

func TestCameraYawTurnsRight(t *testing.T) {
	c := NewCamera()
	c.Yaw(0.5 * math.K_PI)
	assert.True(t, c.Forward().Compare(math.NewVec3Right(), 1e-5))
}
