package testbed

import (
	"fmt"
	"image/color"
	"unsafe"

	"github.com/spaghettifunk/ringrender/engine/assets"
	"github.com/spaghettifunk/ringrender/engine/assets/loaders"
	"github.com/spaghettifunk/ringrender/engine/containers"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

const (
	boxGeometry   = "boxGeo"
	boxSubmesh    = "box"
	grassMaterial = "grass"
	grassTexture  = "grassTex"
	checkerSize   = 256
	checkerCells  = 8
	maxTextureDim = 2048
)

var (
	grassLight = color.RGBA{R: 0x6a, G: 0xb0, B: 0x42, A: 0xff}
	grassDark  = color.RGBA{R: 0x4c, G: 0x8c, B: 0x2f, A: 0xff}
	// boxColour is the vertex colour of the colored binding.
	boxColour = math.NewVec4(0.33, 0.62, 0.25, 1)
)

// BoxScene is the render items of the box grid, addressable by grid cell.
type BoxScene struct {
	Geometry containers.Handle
	Material containers.Handle
	Texture  containers.Handle
	Items    []*renderer.RenderItem
	Size     int
}

// GridPosition is the centre of the box at column x, row z: one unit apart,
// resting on the y=0 plane, centered on the origin.
func GridPosition(size, x, z int) math.Vec3 {
	half := size / 2
	return math.NewVec3(float32(x-half), 0.5, float32(z-half))
}

// SceneParams names the grid size and the optional asset files of the scene,
// relative to the assets directory.
type SceneParams struct {
	Size     int
	Texture  string
	Material string
}

// BuildBoxScene creates the box geometry, the grass material and a size by
// size grid of boxes. Files named in p are loaded through am; without them
// the built-in grass values and a generated checker are used.
func BuildBoxScene(r *renderer.Renderer, am *assets.AssetManager, p SceneParams) (*BoxScene, error) {
	size := p.Size
	bs := &BoxScene{Size: size}
	colored := !r.Binding().HasTextures()

	mc, err := materialConfig(am, p.Material)
	if err != nil {
		return nil, err
	}
	textureName := p.Texture
	if textureName == "" {
		textureName = mc.DiffuseMapName
	}

	geo, err := r.CreateGeometry(boxGeometryDesc(colored))
	if err != nil {
		return nil, fmt.Errorf("box geometry: %w", err)
	}
	bs.Geometry = geo

	diffuseSRV := -1
	if !colored {
		img, err := diffuseImage(am, textureName)
		if err != nil {
			return nil, err
		}
		if bs.Texture, err = r.CreateTexture(grassTexture, img.Width, img.Height, img.Pixels); err != nil {
			return nil, fmt.Errorf("grass texture: %w", err)
		}
		tex, err := r.Scene().Textures.Get(bs.Texture)
		if err != nil {
			return nil, err
		}
		diffuseSRV = tex.SRVIndex
	}

	if bs.Material, err = r.Scene().AddMaterial(&renderer.Material{
		Name:            mc.Name,
		DiffuseSRVIndex: diffuseSRV,
		DiffuseAlbedo:   mc.DiffuseAlbedo,
		FresnelR0:       mc.FresnelR0,
		Roughness:       mc.Roughness,
		MatTransform:    math.NewMat4Identity(),
	}); err != nil {
		return nil, err
	}

	for x := 0; x < size; x++ {
		for z := 0; z < size; z++ {
			world := math.NewMat4Translation(GridPosition(size, x, z))
			item, err := r.Scene().SubmeshItem(bs.Geometry, boxSubmesh, bs.Material, world)
			if err != nil {
				return nil, err
			}
			if err := r.Scene().AddRenderItem(item); err != nil {
				return nil, err
			}
			bs.Items = append(bs.Items, item)
		}
	}
	core.LogInfo("box scene built: %dx%d boxes, colored=%t", size, size, colored)
	return bs, nil
}

// Item returns the box at column x, row z.
func (bs *BoxScene) Item(x, z int) *renderer.RenderItem {
	return bs.Items[x*bs.Size+z]
}

func boxGeometryDesc(colored bool) renderer.GeometryDesc {
	mesh := loaders.CreateBox(1, 1, 1)
	desc := renderer.GeometryDesc{
		Name:        boxGeometry,
		Indices:     renderer.VertexBytes(mesh.Indices),
		IndexFormat: gpu.FormatR16Uint,
		DrawArgs:    map[string]renderer.SubmeshGeometry{},
	}
	if colored {
		desc.Vertices = renderer.VertexBytes(mesh.Colored(boxColour))
		desc.VertexStride = uint32(unsafe.Sizeof(math.VertexColor{}))
	} else {
		desc.Vertices = renderer.VertexBytes(mesh.Vertices)
		desc.VertexStride = uint32(unsafe.Sizeof(math.Vertex3D{}))
	}
	for name, sm := range mesh.Submeshes {
		desc.DrawArgs[name] = renderer.SubmeshGeometry{
			IndexCount:         sm.IndexCount,
			StartIndexLocation: sm.StartIndex,
			BaseVertexLocation: sm.BaseVertex,
		}
	}
	return desc
}

func materialConfig(am *assets.AssetManager, name string) (*loaders.MaterialConfig, error) {
	if name == "" || am == nil {
		return &loaders.MaterialConfig{
			Name:          grassMaterial,
			DiffuseAlbedo: math.NewVec4(1, 1, 1, 1),
			FresnelR0:     math.NewVec3(0.05, 0.05, 0.05),
			Roughness:     0.2,
		}, nil
	}
	res, err := am.LoadAsset(name, loaders.ResourceTypeMaterial, nil)
	if err != nil {
		return nil, fmt.Errorf("material: %w", err)
	}
	mc := res.Data.(*loaders.MaterialConfig)
	_ = am.UnloadAsset(res)
	return mc, nil
}

func diffuseImage(am *assets.AssetManager, name string) (*loaders.ImageData, error) {
	if name == "" || am == nil {
		return loaders.CheckerTexture(checkerSize, checkerCells, grassLight, grassDark), nil
	}
	res, err := am.LoadAsset(name, loaders.ResourceTypeImage, &loaders.ImageResourceParams{MaxSize: maxTextureDim})
	if err != nil {
		return nil, fmt.Errorf("diffuse texture: %w", err)
	}
	img := res.Data.(*loaders.ImageData)
	_ = am.UnloadAsset(res)
	return img, nil
}
