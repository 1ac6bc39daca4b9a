package renderer

import (
	"fmt"

	"github.com/spaghettifunk/ringrender/engine/containers"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// SubmeshGeometry is a range of a shared vertex/index buffer pair.
type SubmeshGeometry struct {
	IndexCount         uint32
	StartIndexLocation uint32
	BaseVertexLocation int32
}

// MeshGeometry is an immutable vertex/index buffer pair with named draw
// ranges.
type MeshGeometry struct {
	Name                 string
	VertexBuffer         gpu.Buffer
	IndexBuffer          gpu.Buffer
	VertexByteStride     uint32
	VertexBufferByteSize uint32
	IndexFormat          gpu.Format
	IndexBufferByteSize  uint32
	DrawArgs             map[string]SubmeshGeometry
}

func (g *MeshGeometry) VertexBufferView() gpu.VertexBufferView {
	return gpu.VertexBufferView{Buffer: g.VertexBuffer, Stride: g.VertexByteStride, Size: g.VertexBufferByteSize}
}

func (g *MeshGeometry) IndexBufferView() gpu.IndexBufferView {
	return gpu.IndexBufferView{Buffer: g.IndexBuffer, Format: g.IndexFormat, Size: g.IndexBufferByteSize}
}

func (g *MeshGeometry) Release() {
	if g.VertexBuffer != nil {
		g.VertexBuffer.Release()
	}
	if g.IndexBuffer != nil {
		g.IndexBuffer.Release()
	}
}

type Texture struct {
	Name     string
	Resource gpu.Texture
	// SRVIndex is the absolute slot in the shader-resource heap.
	SRVIndex int
}

type Material struct {
	Name string
	// MaterialIndex is the element in every slot's material buffer.
	MaterialIndex int
	// DiffuseSRVIndex is an absolute shader-resource heap index.
	DiffuseSRVIndex int
	DirtyFrameCount int

	DiffuseAlbedo math.Vec4
	FresnelR0     math.Vec3
	Roughness     float32
	MatTransform  math.Mat4
}

// RenderItem is one draw: a submesh with a world transform and a material.
type RenderItem struct {
	World        math.Mat4
	TexTransform math.Mat4
	// DirtyFrameCount is how many ring slots still hold stale object
	// constants for this item.
	DirtyFrameCount int
	// ObjectIndex is the fixed element in every slot's object buffer.
	ObjectIndex int

	Material containers.Handle
	Geometry containers.Handle

	Topology           gpu.Topology
	IndexCount         uint32
	StartIndexLocation uint32
	BaseVertexLocation int32
}

// Scene owns the geometry, texture and material registries plus the list of
// render items. Render items reference the registries by handle.
type Scene struct {
	depth        int
	maxItems     int
	maxMaterials int

	Geometries *containers.Arena[*MeshGeometry]
	Textures   *containers.Arena[*Texture]
	Materials  *containers.Arena[*Material]
	items      []*RenderItem
}

// NewScene sizes the scene for a ring of depth slots.
func NewScene(depth, maxItems, maxMaterials int) *Scene {
	return &Scene{
		depth:        depth,
		maxItems:     maxItems,
		maxMaterials: maxMaterials,
		Geometries:   containers.NewArena[*MeshGeometry](),
		Textures:     containers.NewArena[*Texture](),
		Materials:    containers.NewArena[*Material](),
	}
}

func (s *Scene) AddGeometry(g *MeshGeometry) (containers.Handle, error) {
	return s.Geometries.Insert(g.Name, g)
}

func (s *Scene) AddTexture(t *Texture) (containers.Handle, error) {
	return s.Textures.Insert(t.Name, t)
}

// AddMaterial registers m, assigns it the next material buffer element and
// marks it dirty for every slot.
func (s *Scene) AddMaterial(m *Material) (containers.Handle, error) {
	if s.Materials.Len() >= s.maxMaterials {
		return containers.Handle{}, core.Violation("material %q exceeds the capacity of %d", m.Name, s.maxMaterials)
	}
	h, err := s.Materials.Insert(m.Name, m)
	if err != nil {
		return h, err
	}
	m.MaterialIndex = h.Index()
	m.DirtyFrameCount = s.depth
	return h, nil
}

// SubmeshItem builds a render item drawing the named range of geometry.
func (s *Scene) SubmeshItem(geometry containers.Handle, submesh string, material containers.Handle, world math.Mat4) (*RenderItem, error) {
	g, err := s.Geometries.Get(geometry)
	if err != nil {
		return nil, fmt.Errorf("geometry %s: %w", geometry, err)
	}
	args, ok := g.DrawArgs[submesh]
	if !ok {
		return nil, fmt.Errorf("geometry %q has no submesh %q", g.Name, submesh)
	}
	return &RenderItem{
		World:              world,
		TexTransform:       math.NewMat4Identity(),
		Material:           material,
		Geometry:           geometry,
		Topology:           gpu.TopologyTriangleList,
		IndexCount:         args.IndexCount,
		StartIndexLocation: args.StartIndexLocation,
		BaseVertexLocation: args.BaseVertexLocation,
	}, nil
}

// AddRenderItem appends item with the next object index and marks it dirty
// for every slot.
func (s *Scene) AddRenderItem(item *RenderItem) error {
	if len(s.items) >= s.maxItems {
		return core.Violation("render item exceeds the capacity of %d", s.maxItems)
	}
	if _, err := s.Geometries.Get(item.Geometry); err != nil {
		return fmt.Errorf("render item geometry %s: %w", item.Geometry, err)
	}
	if item.Material.IsValid() {
		if _, err := s.Materials.Get(item.Material); err != nil {
			return fmt.Errorf("render item material %s: %w", item.Material, err)
		}
	}
	item.ObjectIndex = len(s.items)
	item.DirtyFrameCount = s.depth
	s.items = append(s.items, item)
	return nil
}

func (s *Scene) Items() []*RenderItem {
	return s.items
}

// SetWorld moves an item and schedules its constants for every slot.
func (s *Scene) SetWorld(item *RenderItem, world math.Mat4) {
	item.World = world
	item.DirtyFrameCount = s.depth
}

// MarkMaterialDirty schedules m's constants for every slot.
func (s *Scene) MarkMaterialDirty(m *Material) {
	m.DirtyFrameCount = s.depth
}

// Release frees geometry and texture resources. The queue must be drained.
func (s *Scene) Release() {
	s.Geometries.Each(func(_ containers.Handle, g *MeshGeometry) {
		g.Release()
	})
	s.Textures.Each(func(_ containers.Handle, t *Texture) {
		if t.Resource != nil {
			t.Resource.Release()
		}
	})
	s.Geometries.Clear()
	s.Textures.Clear()
	s.Materials.Clear()
	s.items = nil
}
