package vulkan

import (
	vk "github.com/goki/vulkan"
)

type renderPassKey struct {
	color vk.Format
	depth vk.Format
	// load keeps earlier contents instead of clearing
	load bool
}

type framebufferKey struct {
	pass  vk.RenderPass
	color vk.ImageView
	depth vk.ImageView
}

// renderPass returns the single-subpass color+depth pass for key, creating
// it on first use. Passes differing only in load op stay compatible.
func (d *Device) renderPass(key renderPassKey) (vk.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rp, ok := d.renderPasses[key]; ok {
		return rp, nil
	}

	loadOp := vk.AttachmentLoadOpClear
	colorInitial := vk.ImageLayoutUndefined
	depthInitial := vk.ImageLayoutUndefined
	if key.load {
		loadOp = vk.AttachmentLoadOpLoad
		colorInitial = vk.ImageLayoutPresentSrc
		depthInitial = vk.ImageLayoutDepthStencilAttachmentOptimal
	}
	attachments := []vk.AttachmentDescription{
		{
			Format:         key.color,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  colorInitial,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         key.depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  loadOp,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  depthInitial,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}
	depthRef := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &depthRef,
	}
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	var rp vk.RenderPass
	if err := check("create render pass", vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &rp)); err != nil {
		return vk.NullRenderPass, err
	}
	d.renderPasses[key] = rp
	d.logger.Debug("render pass created", "color", key.color, "depth", key.depth, "load", key.load)
	return rp, nil
}

// framebuffer returns a cached framebuffer over the current views of color
// and depth, sized to the smaller of the two.
func (d *Device) framebuffer(pass vk.RenderPass, color, depth *Texture) (vk.Framebuffer, vk.Extent2D, error) {
	extent := vk.Extent2D{
		Width:  min(color.Width(), depth.Width()),
		Height: min(color.Height(), depth.Height()),
	}
	key := framebufferKey{pass: pass, color: color.imageView(), depth: depth.imageView()}

	d.mu.Lock()
	defer d.mu.Unlock()
	if fb, ok := d.framebuffers[key]; ok {
		return fb, extent, nil
	}
	var fb vk.Framebuffer
	if err := check("create framebuffer", vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: 2,
		PAttachments:    []vk.ImageView{key.color, key.depth},
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}, nil, &fb)); err != nil {
		return vk.NullFramebuffer, extent, err
	}
	d.framebuffers[key] = fb
	return fb, extent, nil
}

// forgetTarget destroys every framebuffer built over view.
func (d *Device) forgetTarget(view vk.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, fb := range d.framebuffers {
		if key.color == view || key.depth == view {
			vk.DestroyFramebuffer(d.device, fb, nil)
			delete(d.framebuffers, key)
		}
	}
}

func (d *Device) destroyRenderTargets() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.device, fb, nil)
		delete(d.framebuffers, key)
	}
	for key, rp := range d.renderPasses {
		vk.DestroyRenderPass(d.device, rp, nil)
		delete(d.renderPasses, key)
	}
}
