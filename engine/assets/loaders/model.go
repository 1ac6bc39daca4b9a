package loaders

import (
	"fmt"
	"sort"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/ringrender/engine/math"
)

// Submesh is a draw range inside MeshData.
type Submesh struct {
	IndexCount uint32
	StartIndex uint32
	BaseVertex int32
}

// MeshData is CPU-side geometry with 16-bit indices.
type MeshData struct {
	Vertices  []math.Vertex3D
	Indices   []uint16
	Submeshes map[string]Submesh
}

func single(name string, vertices []math.Vertex3D, indices []uint16) *MeshData {
	return &MeshData{
		Vertices:  vertices,
		Indices:   indices,
		Submeshes: map[string]Submesh{name: {IndexCount: uint32(len(indices))}},
	}
}

// CreateBox builds an axis-aligned box centered at the origin with 4
// vertices per face so every face has its own normal and texture corners.
// Triangles wind clockwise seen from outside.
func CreateBox(width, height, depth float32) *MeshData {
	w, h, d := 0.5*width, 0.5*height, 0.5*depth
	v := func(x, y, z, nx, ny, nz, u, t float32) math.Vertex3D {
		return math.Vertex3D{
			Position: math.NewVec3(x, y, z),
			Normal:   math.NewVec3(nx, ny, nz),
			Texcoord: math.NewVec2(u, t),
		}
	}
	vertices := []math.Vertex3D{
		// front
		v(-w, -h, -d, 0, 0, -1, 0, 1),
		v(-w, +h, -d, 0, 0, -1, 0, 0),
		v(+w, +h, -d, 0, 0, -1, 1, 0),
		v(+w, -h, -d, 0, 0, -1, 1, 1),
		// back
		v(-w, -h, +d, 0, 0, 1, 1, 1),
		v(+w, -h, +d, 0, 0, 1, 0, 1),
		v(+w, +h, +d, 0, 0, 1, 0, 0),
		v(-w, +h, +d, 0, 0, 1, 1, 0),
		// top
		v(-w, +h, -d, 0, 1, 0, 0, 1),
		v(-w, +h, +d, 0, 1, 0, 0, 0),
		v(+w, +h, +d, 0, 1, 0, 1, 0),
		v(+w, +h, -d, 0, 1, 0, 1, 1),
		// bottom
		v(-w, -h, -d, 0, -1, 0, 1, 1),
		v(+w, -h, -d, 0, -1, 0, 0, 1),
		v(+w, -h, +d, 0, -1, 0, 0, 0),
		v(-w, -h, +d, 0, -1, 0, 1, 0),
		// left
		v(-w, -h, +d, -1, 0, 0, 0, 1),
		v(-w, +h, +d, -1, 0, 0, 0, 0),
		v(-w, +h, -d, -1, 0, 0, 1, 0),
		v(-w, -h, -d, -1, 0, 0, 1, 1),
		// right
		v(+w, -h, -d, 1, 0, 0, 0, 1),
		v(+w, +h, -d, 1, 0, 0, 0, 0),
		v(+w, +h, +d, 1, 0, 0, 1, 0),
		v(+w, -h, +d, 1, 0, 0, 1, 1),
	}
	indices := make([]uint16, 0, 36)
	for face := uint16(0); face < 6; face++ {
		b := face * 4
		indices = append(indices, b, b+1, b+2, b, b+2, b+3)
	}
	return single("box", vertices, indices)
}

// CreateGrid builds an m x n vertex grid in the XZ plane.
func CreateGrid(width, depth float32, m, n int) (*MeshData, error) {
	if m < 2 || n < 2 {
		return nil, fmt.Errorf("grid needs at least 2x2 vertices, got %dx%d", m, n)
	}
	if m*n > 1<<16 {
		return nil, fmt.Errorf("grid of %dx%d overflows 16-bit indices", m, n)
	}
	halfW, halfD := 0.5*width, 0.5*depth
	dx := width / float32(n-1)
	dz := depth / float32(m-1)
	du := 1.0 / float32(n-1)
	dv := 1.0 / float32(m-1)

	vertices := make([]math.Vertex3D, 0, m*n)
	for i := 0; i < m; i++ {
		z := halfD - float32(i)*dz
		for j := 0; j < n; j++ {
			x := -halfW + float32(j)*dx
			vertices = append(vertices, math.Vertex3D{
				Position: math.NewVec3(x, 0, z),
				Normal:   math.NewVec3Up(),
				Texcoord: math.NewVec2(float32(j)*du, float32(i)*dv),
			})
		}
	}

	indices := make([]uint16, 0, (m-1)*(n-1)*6)
	for i := 0; i < m-1; i++ {
		for j := 0; j < n-1; j++ {
			a := uint16(i*n + j)
			b := uint16(i*n + j + 1)
			c := uint16((i+1)*n + j)
			d := uint16((i+1)*n + j + 1)
			indices = append(indices, a, b, c, c, b, d)
		}
	}
	return single("grid", vertices, indices), nil
}

// CreateSphere builds a UV sphere with the given slice and stack counts.
func CreateSphere(radius float32, slices, stacks int) (*MeshData, error) {
	if slices < 3 || stacks < 2 {
		return nil, fmt.Errorf("sphere needs at least 3 slices and 2 stacks")
	}
	vertices := []math.Vertex3D{{
		Position: math.NewVec3(0, radius, 0),
		Normal:   math.NewVec3(0, 1, 0),
		Texcoord: math.NewVec2(0, 0),
	}}
	phiStep := math.K_PI / float32(stacks)
	thetaStep := 2 * math.K_PI / float32(slices)
	for i := 1; i < stacks; i++ {
		phi := float32(i) * phiStep
		for j := 0; j <= slices; j++ {
			theta := float32(j) * thetaStep
			p := math.NewVec3(
				radius*math32.Sin(phi)*math32.Cos(theta),
				radius*math32.Cos(phi),
				radius*math32.Sin(phi)*math32.Sin(theta),
			)
			vertices = append(vertices, math.Vertex3D{
				Position: p,
				Normal:   p.Normalized(),
				Texcoord: math.NewVec2(theta/(2*math.K_PI), phi/math.K_PI),
			})
		}
	}
	vertices = append(vertices, math.Vertex3D{
		Position: math.NewVec3(0, -radius, 0),
		Normal:   math.NewVec3(0, -1, 0),
		Texcoord: math.NewVec2(0, 1),
	})
	if len(vertices) > 1<<16 {
		return nil, fmt.Errorf("sphere of %dx%d overflows 16-bit indices", slices, stacks)
	}

	var indices []uint16
	ring := uint16(slices + 1)
	for j := uint16(1); j <= uint16(slices); j++ {
		indices = append(indices, 0, j+1, j)
	}
	base := uint16(1)
	for i := uint16(0); i < uint16(stacks-2); i++ {
		for j := uint16(0); j < uint16(slices); j++ {
			indices = append(indices,
				base+i*ring+j, base+i*ring+j+1, base+(i+1)*ring+j,
				base+(i+1)*ring+j, base+i*ring+j+1, base+(i+1)*ring+j+1,
			)
		}
	}
	south := uint16(len(vertices) - 1)
	last := south - ring
	for j := uint16(0); j < uint16(slices); j++ {
		indices = append(indices, south, last+j, last+j+1)
	}
	return single("sphere", vertices, indices), nil
}

// Merge concatenates meshes into one vertex/index pair. Each input's
// submeshes are kept under their own names with offsets applied. Inputs
// are appended in name order.
func Merge(meshes ...*MeshData) (*MeshData, error) {
	out := &MeshData{Submeshes: map[string]Submesh{}}
	for _, m := range meshes {
		names := make([]string, 0, len(m.Submeshes))
		for name := range m.Submeshes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, dup := out.Submeshes[name]; dup {
				return nil, fmt.Errorf("duplicate submesh %q", name)
			}
			s := m.Submeshes[name]
			out.Submeshes[name] = Submesh{
				IndexCount: s.IndexCount,
				StartIndex: s.StartIndex + uint32(len(out.Indices)),
				BaseVertex: s.BaseVertex + int32(len(out.Vertices)),
			}
		}
		out.Vertices = append(out.Vertices, m.Vertices...)
		out.Indices = append(out.Indices, m.Indices...)
	}
	return out, nil
}

// Colored converts the mesh to position/colour vertices.
func (m *MeshData) Colored(colour math.Vec4) []math.VertexColor {
	out := make([]math.VertexColor, len(m.Vertices))
	for i, v := range m.Vertices {
		out[i] = math.VertexColor{Position: v.Position, Colour: colour}
	}
	return out
}
