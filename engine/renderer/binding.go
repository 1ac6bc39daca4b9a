package renderer

import (
	"fmt"

	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

type BindingVariant string

const (
	// BindingTextured binds a texture table, object, pass and material
	// constants.
	BindingTextured BindingVariant = "textured"
	// BindingColored binds object and pass constants only.
	BindingColored BindingVariant = "colored"
)

const (
	// OverlayDescriptorSlot is the shader-resource heap slot reserved for the
	// overlay font atlas.
	OverlayDescriptorSlot = 0
	// TextureTableBase is the first heap slot handed to scene textures.
	TextureTableBase = 1
)

// BindingLayout maps the variant onto root parameter indices. A parameter
// the variant does not use is -1.
type BindingLayout struct {
	Variant      BindingVariant
	TextureTable int
	ObjectCB     int
	PassCB       int
	MaterialCB   int
	Root         gpu.RootLayout
}

func NewBindingLayout(variant BindingVariant) (BindingLayout, error) {
	switch variant {
	case BindingTextured, "":
		return BindingLayout{
			Variant:      BindingTextured,
			TextureTable: 0,
			ObjectCB:     1,
			PassCB:       2,
			MaterialCB:   3,
			Root: gpu.RootLayout{
				Parameters: []gpu.RootParameter{
					{Kind: gpu.RootDescriptorTable, ShaderRegister: 0, Visibility: gpu.VisibilityPixel, DescriptorCount: 1},
					{Kind: gpu.RootConstantBufferView, ShaderRegister: 0},
					{Kind: gpu.RootConstantBufferView, ShaderRegister: 1},
					{Kind: gpu.RootConstantBufferView, ShaderRegister: 2},
				},
				StaticSamplers: StaticSamplers(),
			},
		}, nil
	case BindingColored:
		return BindingLayout{
			Variant:      BindingColored,
			TextureTable: -1,
			ObjectCB:     0,
			PassCB:       1,
			MaterialCB:   -1,
			Root: gpu.RootLayout{
				Parameters: []gpu.RootParameter{
					{Kind: gpu.RootConstantBufferView, ShaderRegister: 0},
					{Kind: gpu.RootConstantBufferView, ShaderRegister: 1},
				},
			},
		}, nil
	default:
		return BindingLayout{}, fmt.Errorf("unknown binding variant %q", variant)
	}
}

// HasTextures reports whether draws bind a texture table.
func (b BindingLayout) HasTextures() bool {
	return b.TextureTable >= 0
}

// StaticSamplers returns point, linear and anisotropic filtering, each with
// wrap and clamp addressing, on registers s0 to s5.
func StaticSamplers() []gpu.StaticSampler {
	filters := []gpu.Filter{gpu.FilterPoint, gpu.FilterLinear, gpu.FilterAnisotropic}
	modes := []gpu.AddressMode{gpu.AddressWrap, gpu.AddressClamp}
	out := make([]gpu.StaticSampler, 0, len(filters)*len(modes))
	for _, f := range filters {
		for _, m := range modes {
			s := gpu.StaticSampler{
				ShaderRegister: uint32(len(out)),
				Filter:         f,
				AddressMode:    m,
			}
			if f == gpu.FilterAnisotropic {
				s.MaxAnisotropy = 8
			}
			out = append(out, s)
		}
	}
	return out
}
