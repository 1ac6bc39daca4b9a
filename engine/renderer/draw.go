package renderer

import (
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// DrawRecorder records render items against one binding layout.
type DrawRecorder struct {
	Binding   BindingLayout
	Scene     *Scene
	SRVHeap   gpu.DescriptorHeap
	SRVStride uint32
}

// Record emits, per item: geometry binding, the optional texture table,
// the object constants at the item's element of frame, the optional
// material constants, then the indexed draw. Pass constants and the root
// signature are bound by the caller.
func (d *DrawRecorder) Record(cl gpu.CommandList, frame *FrameResource, items []*RenderItem) error {
	for _, it := range items {
		geo, err := d.Scene.Geometries.Get(it.Geometry)
		if err != nil {
			return core.Violation("render item %d: geometry %s: %v", it.ObjectIndex, it.Geometry, err)
		}
		cl.SetVertexBuffer(geo.VertexBufferView())
		cl.SetIndexBuffer(geo.IndexBufferView())
		cl.SetPrimitiveTopology(it.Topology)

		var mat *Material
		if it.Material.IsValid() {
			if mat, err = d.Scene.Materials.Get(it.Material); err != nil {
				return core.Violation("render item %d: material %s: %v", it.ObjectIndex, it.Material, err)
			}
		}

		if d.Binding.HasTextures() {
			if mat == nil {
				return core.Violation("render item %d has no material for a textured binding", it.ObjectIndex)
			}
			table := d.SRVHeap.Start().Offset(mat.DiffuseSRVIndex, d.SRVStride)
			cl.SetGraphicsRootDescriptorTable(uint32(d.Binding.TextureTable), table)
		}

		cl.SetGraphicsRootConstantBufferView(uint32(d.Binding.ObjectCB), frame.ObjectCB.Address(it.ObjectIndex))

		if d.Binding.MaterialCB >= 0 && mat != nil {
			cl.SetGraphicsRootConstantBufferView(uint32(d.Binding.MaterialCB), frame.MaterialCB.Address(mat.MaterialIndex))
		}

		cl.DrawIndexedInstanced(it.IndexCount, 1, it.StartIndexLocation, it.BaseVertexLocation, 0)
	}
	return nil
}
