package renderer

import (
	"github.com/spaghettifunk/ringrender/engine/containers"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer/components"
)

// UpdateObjectConstants writes every dirty item into frame's object buffer
// and decrements its dirty count.
func UpdateObjectConstants(items []*RenderItem, frame *FrameResource) error {
	for _, it := range items {
		if it.DirtyFrameCount <= 0 {
			continue
		}
		oc := ObjectConstants{
			World:        math.NewMat4Transposed(it.World),
			TexTransform: math.NewMat4Transposed(it.TexTransform),
		}
		if err := frame.ObjectCB.CopyData(it.ObjectIndex, &oc); err != nil {
			return err
		}
		it.DirtyFrameCount--
	}
	return nil
}

// UpdateMaterialConstants is UpdateObjectConstants for materials.
func UpdateMaterialConstants(materials *containers.Arena[*Material], frame *FrameResource) error {
	var err error
	materials.Each(func(_ containers.Handle, m *Material) {
		if err != nil || m.DirtyFrameCount <= 0 {
			return
		}
		mc := MaterialConstants{
			DiffuseAlbedo: m.DiffuseAlbedo,
			FresnelR0:     m.FresnelR0,
			Roughness:     m.Roughness,
			MatTransform:  math.NewMat4Transposed(m.MatTransform),
		}
		if err = frame.MaterialCB.CopyData(m.MaterialIndex, &mc); err != nil {
			return
		}
		m.DirtyFrameCount--
	})
	return err
}

// BuildPassConstants fills the per-pass block from the camera and the
// render target size.
func BuildPassConstants(camera *components.Camera, width, height uint32, totalTime, deltaTime float32, lighting Lighting) PassConstants {
	view := camera.GetView()
	proj := camera.GetProjection()
	viewProj := view.Mul(proj)

	w, h := float32(width), float32(height)
	pc := PassConstants{
		View:                math.NewMat4Transposed(view),
		InvView:             math.NewMat4Transposed(view.Inverse()),
		Proj:                math.NewMat4Transposed(proj),
		InvProj:             math.NewMat4Transposed(proj.Inverse()),
		ViewProj:            math.NewMat4Transposed(viewProj),
		InvViewProj:         math.NewMat4Transposed(viewProj.Inverse()),
		EyePosW:             camera.GetPosition(),
		RenderTargetSize:    math.NewVec2(w, h),
		InvRenderTargetSize: math.NewVec2(1.0/w, 1.0/h),
		NearZ:               camera.NearZ,
		FarZ:                camera.FarZ,
		TotalTime:           totalTime,
		DeltaTime:           deltaTime,
		AmbientLight:        lighting.Ambient,
	}
	for i, l := range lighting.Directional {
		if i >= MaxLights {
			break
		}
		pc.Lights[i] = l
	}
	return pc
}
