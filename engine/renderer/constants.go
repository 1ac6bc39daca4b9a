package renderer

import "github.com/spaghettifunk/ringrender/engine/math"

// MaxLights is the size of the light array in PassConstants.
const MaxLights = 16

// The structs below mirror the shader constant blocks byte for byte. Matrices
// are stored transposed.

type Light struct {
	Strength     math.Vec3
	FalloffStart float32
	Direction    math.Vec3
	FalloffEnd   float32
	Position     math.Vec3
	SpotPower    float32
}

type ObjectConstants struct {
	World        math.Mat4
	TexTransform math.Mat4
}

type MaterialConstants struct {
	DiffuseAlbedo math.Vec4
	FresnelR0     math.Vec3
	Roughness     float32
	MatTransform  math.Mat4
}

type PassConstants struct {
	View                math.Mat4
	InvView             math.Mat4
	Proj                math.Mat4
	InvProj             math.Mat4
	ViewProj            math.Mat4
	InvViewProj         math.Mat4
	EyePosW             math.Vec3
	pad0                float32
	RenderTargetSize    math.Vec2
	InvRenderTargetSize math.Vec2
	NearZ               float32
	FarZ                float32
	TotalTime           float32
	DeltaTime           float32
	AmbientLight        math.Vec4
	Lights              [MaxLights]Light
}

// Lighting is the fixed light rig written into every pass.
type Lighting struct {
	Ambient     math.Vec4
	Directional []Light
}

// DefaultLighting is a key, fill and back light under a bluish ambient.
func DefaultLighting() Lighting {
	return Lighting{
		Ambient: math.NewVec4(0.25, 0.25, 0.35, 1.0),
		Directional: []Light{
			{Direction: math.NewVec3(0.57735, -0.57735, 0.57735), Strength: math.NewVec3(0.6, 0.6, 0.6)},
			{Direction: math.NewVec3(-0.57735, -0.57735, 0.57735), Strength: math.NewVec3(0.3, 0.3, 0.3)},
			{Direction: math.NewVec3(0.0, -0.707, -0.707), Strength: math.NewVec3(0.15, 0.15, 0.15)},
		},
	}
}
