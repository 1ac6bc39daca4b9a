package components

import (
	"github.com/chewxy/math32"

	"github.com/spaghettifunk/ringrender/engine/math"
)

/**
 * @brief A fly camera: a position, pitch/yaw Euler rotation and a
 * perspective lens. Left-handed, +Z looks forward.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position math.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * Roll is ignored.
	 */
	EulerRotation math.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	/** @brief The cached view matrix. Read it through GetView(). */
	ViewMatrix math.Mat4

	FovY   float32
	Aspect float32
	NearZ  float32
	FarZ   float32

	projection math.Mat4
}

// pitchLimit is 89 degrees, to avoid gimbal lock.
const pitchLimit = float32(1.55334306)

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.Vec3{}
	c.Position = math.Vec3{}
	c.IsDirty = true
	c.ViewMatrix = math.NewMat4Identity()
	c.SetLens(0.25*math.K_PI, 1.0, 1.0, 1000.0)
}

// SetLens rebuilds the projection matrix.
func (c *Camera) SetLens(fovY, aspect, nearZ, farZ float32) {
	c.FovY = fovY
	c.Aspect = aspect
	c.NearZ = nearZ
	c.FarZ = farZ
	c.projection = math.NewMat4PerspectiveLH(fovY, aspect, nearZ, farZ)
}

func (c *Camera) GetProjection() math.Mat4 {
	return c.projection
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -pitchLimit, pitchLimit)
	c.IsDirty = true
}

// LookAt points the camera at target by deriving pitch and yaw.
func (c *Camera) LookAt(position, target math.Vec3) {
	dir := target.Sub(position).Normalized()
	yaw := math32.Atan2(dir.X, dir.Z)
	pitch := -math32.Asin(dir.Y)
	c.Position = position
	c.SetEulerRotation(math.NewVec3(pitch, yaw, 0))
}

func (c *Camera) rotation() math.Mat4 {
	return math.NewMat4EulerX(c.EulerRotation.X).Mul(math.NewMat4EulerY(c.EulerRotation.Y))
}

func (c *Camera) GetView() math.Mat4 {
	if c.IsDirty {
		c.ViewMatrix = math.NewMat4View(c.Position, c.Right(), c.Up(), c.Forward())
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) Forward() math.Vec3 {
	r := c.rotation()
	return math.NewVec3(r.Data[8], r.Data[9], r.Data[10])
}

func (c *Camera) Right() math.Vec3 {
	r := c.rotation()
	return math.NewVec3(r.Data[0], r.Data[1], r.Data[2])
}

func (c *Camera) Up() math.Vec3 {
	r := c.rotation()
	return math.NewVec3(r.Data[4], r.Data[5], r.Data[6])
}

func (c *Camera) MoveForward(amount float32) {
	c.Position = c.Position.Add(c.Forward().MulScalar(amount))
	c.IsDirty = true
}

func (c *Camera) MoveBackward(amount float32) {
	c.MoveForward(-amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.Position = c.Position.Add(c.Right().MulScalar(amount))
	c.IsDirty = true
}

func (c *Camera) MoveLeft(amount float32) {
	c.MoveRight(-amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.Position = c.Position.Add(math.NewVec3Up().MulScalar(amount))
	c.IsDirty = true
}

func (c *Camera) MoveDown(amount float32) {
	c.MoveUp(-amount)
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation.Y += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation.X += amount

	// Clamp to avoid Gimbal lock.
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -pitchLimit, pitchLimit)

	c.IsDirty = true
}
