package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// CommandAllocator owns a command pool. Lists recorded from it allocate one
// primary buffer each, kept for the allocator's lifetime.
type CommandAllocator struct {
	dev  *Device
	pool vk.CommandPool
}

func (d *Device) CreateCommandAllocator() (gpu.CommandAllocator, error) {
	var pool vk.CommandPool
	if err := check("create command pool", vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &pool)); err != nil {
		return nil, err
	}
	return &CommandAllocator{dev: d, pool: pool}, nil
}

func (a *CommandAllocator) Reset() error {
	return check("reset command pool", vk.ResetCommandPool(a.dev.device, a.pool, 0))
}

func (a *CommandAllocator) Release() {
	if a.pool != vk.NullCommandPool {
		vk.DestroyCommandPool(a.dev.device, a.pool, nil)
		a.pool = vk.NullCommandPool
	}
}

type clearState struct {
	color   gpu.Color
	depth   float32
	stencil uint8
}

// CommandList translates the recording calls into a VkCommandBuffer. The
// render pass begins lazily at the first draw, so clears recorded before it
// become the pass's load values. Recording errors are deferred to Close.
type CommandList struct {
	dev     *Device
	name    string
	buffers map[*CommandAllocator]vk.CommandBuffer
	cmd     vk.CommandBuffer
	open    bool
	err     error

	pipeline *PipelineState
	root     *RootSignature
	topology gpu.Topology

	rtv    *Texture
	dsv    *Texture
	clear  clearState
	inPass bool
	// targets already rendered to in this recording load instead of clear
	loaded map[*Texture]bool

	acquired *SwapChain
}

func (d *Device) CreateCommandList(alloc gpu.CommandAllocator) (gpu.CommandList, error) {
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return nil, core.Violation("foreign command allocator %T", alloc)
	}
	cl := &CommandList{
		dev:     d,
		name:    "command list",
		buffers: map[*CommandAllocator]vk.CommandBuffer{},
		clear:   clearState{depth: 1},
	}
	if _, err := cl.bufferFor(a); err != nil {
		return nil, err
	}
	return cl, nil
}

func (cl *CommandList) bufferFor(a *CommandAllocator) (vk.CommandBuffer, error) {
	if cmd, ok := cl.buffers[a]; ok {
		return cmd, nil
	}
	cmds := make([]vk.CommandBuffer, 1)
	if err := check("allocate command buffer", vk.AllocateCommandBuffers(cl.dev.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        a.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)); err != nil {
		return nil, err
	}
	cl.buffers[a] = cmds[0]
	return cmds[0], nil
}

func (cl *CommandList) Reset(alloc gpu.CommandAllocator, initial gpu.PipelineState) error {
	if cl.open {
		return core.Violation("command list %q reset while open", cl.name)
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return core.Violation("foreign command allocator %T", alloc)
	}
	cmd, err := cl.bufferFor(a)
	if err != nil {
		return err
	}
	if err := check("begin command buffer", vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return err
	}
	cl.cmd = cmd
	cl.open = true
	cl.err = nil
	cl.pipeline, cl.root = nil, nil
	cl.rtv, cl.dsv = nil, nil
	cl.inPass = false
	cl.loaded = map[*Texture]bool{}
	cl.acquired = nil
	if initial != nil {
		cl.SetPipelineState(initial)
	}
	return nil
}

func (cl *CommandList) Close() error {
	if !cl.open {
		return core.Violation("command list %q closed twice", cl.name)
	}
	cl.endPass()
	cl.open = false
	if err := check("end command buffer", vk.EndCommandBuffer(cl.cmd)); err != nil && cl.err == nil {
		cl.err = err
	}
	return cl.err
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = err
	}
}

func (cl *CommandList) recording() bool {
	if !cl.open {
		cl.fail(core.Violation("command list %q recorded while closed", cl.name))
		return false
	}
	return cl.err == nil
}

func (cl *CommandList) ResourceBarrier(res gpu.Texture, before, after gpu.ResourceState) {
	if !cl.recording() {
		return
	}
	t, ok := res.(*Texture)
	if !ok {
		cl.fail(core.Violation("foreign texture %T", res))
		return
	}
	if t.swap != nil {
		cl.swapBarrier(t, before, after)
		return
	}
	cl.endPass()
	cl.transition(t, layoutFor(before, t), layoutFor(after, t))
}

// swapBarrier acquires the next image on entry to RenderTarget. The render
// pass moves the image to PresentSrc, so leaving RenderTarget only has to
// make sure the pass ran.
func (cl *CommandList) swapBarrier(t *Texture, before, after gpu.ResourceState) {
	switch {
	case after == gpu.StateRenderTarget:
		if err := t.swap.acquire(); err != nil {
			cl.fail(err)
			return
		}
		cl.acquired = t.swap
	case after == gpu.StatePresent && before == gpu.StateRenderTarget:
		if !cl.inPass && cl.rtv == t && !cl.loaded[t] {
			// nothing drawn; the pass still has to clear and transition
			cl.beginPass()
		}
		cl.endPass()
	}
}

func (cl *CommandList) transition(t *Texture, from, to vk.ImageLayout) {
	if from == to {
		return
	}
	aspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
	if t.depth {
		aspect = depthAspect(t.vkFormat)
	}
	srcStage, srcAccess := stageAccess(from)
	dstStage, dstAccess := stageAccess(to)
	vk.CmdPipelineBarrier(cl.cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               t.image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}})
	t.layout = to
}

func (cl *CommandList) SetViewport(vp gpu.Viewport) {
	if !cl.recording() {
		return
	}
	// negative height keeps +Y up in clip space
	vk.CmdSetViewport(cl.cmd, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y + vp.Height,
		Width:    vp.Width,
		Height:   -vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}})
}

func (cl *CommandList) SetScissorRect(r gpu.Rect) {
	if !cl.recording() {
		return
	}
	if r.Right < r.Left || r.Bottom < r.Top {
		cl.fail(core.Violation("inverted scissor rect %+v", r))
		return
	}
	vk.CmdSetScissor(cl.cmd, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.Left, Y: r.Top},
		Extent: vk.Extent2D{Width: uint32(r.Right - r.Left), Height: uint32(r.Bottom - r.Top)},
	}})
}

func (cl *CommandList) ClearRenderTargetView(rtv gpu.DescriptorHandle, color gpu.Color) {
	if !cl.recording() {
		return
	}
	t, err := cl.dev.viewTexture(rtv, gpu.HeapRenderTarget)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.clear.color = color
	if cl.inPass && t == cl.rtv {
		var v vk.ClearValue
		v.SetColor(color[:])
		vk.CmdClearAttachments(cl.cmd, 1, []vk.ClearAttachment{{
			AspectMask:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
			ColorAttachment: 0,
			ClearValue:      v,
		}}, 1, []vk.ClearRect{cl.fullRect(t)})
		return
	}
	delete(cl.loaded, t)
}

func (cl *CommandList) ClearDepthStencilView(dsv gpu.DescriptorHandle, depth float32, stencil uint8) {
	if !cl.recording() {
		return
	}
	t, err := cl.dev.viewTexture(dsv, gpu.HeapDepthStencil)
	if err != nil {
		cl.fail(err)
		return
	}
	cl.clear.depth, cl.clear.stencil = depth, stencil
	if cl.inPass && t == cl.dsv {
		var v vk.ClearValue
		v.SetDepthStencil(depth, uint32(stencil))
		vk.CmdClearAttachments(cl.cmd, 1, []vk.ClearAttachment{{
			AspectMask: depthAspect(t.vkFormat),
			ClearValue: v,
		}}, 1, []vk.ClearRect{cl.fullRect(t)})
		return
	}
	delete(cl.loaded, t)
}

func (cl *CommandList) fullRect(t *Texture) vk.ClearRect {
	return vk.ClearRect{
		Rect:       vk.Rect2D{Extent: vk.Extent2D{Width: t.Width(), Height: t.Height()}},
		LayerCount: 1,
	}
}

func (cl *CommandList) SetRenderTargets(rtv gpu.DescriptorHandle, dsv gpu.DescriptorHandle) {
	if !cl.recording() {
		return
	}
	color, err := cl.dev.viewTexture(rtv, gpu.HeapRenderTarget)
	if err != nil {
		cl.fail(err)
		return
	}
	depth, err := cl.dev.viewTexture(dsv, gpu.HeapDepthStencil)
	if err != nil {
		cl.fail(err)
		return
	}
	if color != cl.rtv || depth != cl.dsv {
		cl.endPass()
	}
	cl.rtv, cl.dsv = color, depth
}

func (cl *CommandList) beginPass() {
	if cl.inPass {
		return
	}
	if cl.rtv == nil || cl.dsv == nil {
		cl.fail(core.Violation("draw on %q without render targets", cl.name))
		return
	}
	load := cl.loaded[cl.rtv]
	pass, err := cl.dev.renderPass(renderPassKey{color: cl.rtv.vkFormat, depth: cl.dsv.vkFormat, load: load})
	if err != nil {
		cl.fail(err)
		return
	}
	fb, extent, err := cl.dev.framebuffer(pass, cl.rtv, cl.dsv)
	if err != nil {
		cl.fail(err)
		return
	}
	var color, depth vk.ClearValue
	color.SetColor(cl.clear.color[:])
	depth.SetDepthStencil(cl.clear.depth, uint32(cl.clear.stencil))
	vk.CmdBeginRenderPass(cl.cmd, &vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      pass,
		Framebuffer:     fb,
		RenderArea:      vk.Rect2D{Extent: extent},
		ClearValueCount: 2,
		PClearValues:    []vk.ClearValue{color, depth},
	}, vk.SubpassContentsInline)
	cl.inPass = true
	cl.loaded[cl.rtv] = true
	cl.loaded[cl.dsv] = true
	cl.dsv.layout = vk.ImageLayoutDepthStencilAttachmentOptimal
}

func (cl *CommandList) endPass() {
	if cl.inPass {
		vk.CmdEndRenderPass(cl.cmd)
		cl.inPass = false
	}
}

func (cl *CommandList) SetDescriptorHeaps(heaps ...gpu.DescriptorHeap) {
	if !cl.recording() {
		return
	}
	for _, h := range heaps {
		dh, ok := h.(*DescriptorHeap)
		if !ok {
			cl.fail(core.Violation("foreign descriptor heap %T", h))
			return
		}
		if dh.kind != gpu.HeapShaderResource {
			cl.fail(core.Violation("%s heap bound as shader visible", dh.kind))
			return
		}
	}
}

func (cl *CommandList) SetGraphicsRootSignature(rs gpu.RootSignature) {
	if !cl.recording() {
		return
	}
	r, ok := rs.(*RootSignature)
	if !ok {
		cl.fail(core.Violation("foreign root signature %T", rs))
		return
	}
	cl.root = r
	if r.samplerSet != nil {
		vk.CmdBindDescriptorSets(cl.cmd, vk.PipelineBindPointGraphics, r.layout,
			uint32(len(r.desc.Parameters)), 1, []vk.DescriptorSet{r.samplerSet}, 0, nil)
	}
}

func (cl *CommandList) SetPipelineState(pso gpu.PipelineState) {
	if !cl.recording() {
		return
	}
	p, ok := pso.(*PipelineState)
	if !ok {
		cl.fail(core.Violation("foreign pipeline state %T", pso))
		return
	}
	cl.pipeline = p
	cl.topology = p.topology
	vk.CmdBindPipeline(cl.cmd, vk.PipelineBindPointGraphics, p.handle)
}

func (cl *CommandList) param(slot uint32, kind gpu.RootParameterKind) bool {
	if cl.root == nil {
		cl.fail(core.Violation("root argument set before root signature"))
		return false
	}
	params := cl.root.desc.Parameters
	if int(slot) >= len(params) || params[slot].Kind != kind {
		cl.fail(core.Violation("root slot %d does not take this argument", slot))
		return false
	}
	return true
}

func (cl *CommandList) SetGraphicsRootDescriptorTable(slot uint32, base gpu.DescriptorHandle) {
	if !cl.recording() || !cl.param(slot, gpu.RootDescriptorTable) {
		return
	}
	set, err := cl.dev.tableSet(base)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(cl.cmd, vk.PipelineBindPointGraphics, cl.root.layout,
		slot, 1, []vk.DescriptorSet{set}, 0, nil)
}

func (cl *CommandList) SetGraphicsRootConstantBufferView(slot uint32, address gpu.GPUAddress) {
	if !cl.recording() || !cl.param(slot, gpu.RootConstantBufferView) {
		return
	}
	set, err := cl.dev.uniforms.set(address)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindDescriptorSets(cl.cmd, vk.PipelineBindPointGraphics, cl.root.layout,
		slot, 1, []vk.DescriptorSet{set}, 0, nil)
}

func (cl *CommandList) SetVertexBuffer(view gpu.VertexBufferView) {
	if !cl.recording() {
		return
	}
	b, ok := view.Buffer.(*Buffer)
	if !ok {
		cl.fail(core.Violation("foreign vertex buffer %T", view.Buffer))
		return
	}
	vk.CmdBindVertexBuffers(cl.cmd, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{0})
}

func (cl *CommandList) SetIndexBuffer(view gpu.IndexBufferView) {
	if !cl.recording() {
		return
	}
	b, ok := view.Buffer.(*Buffer)
	if !ok {
		cl.fail(core.Violation("foreign index buffer %T", view.Buffer))
		return
	}
	it, err := vkIndexType(view.Format)
	if err != nil {
		cl.fail(err)
		return
	}
	vk.CmdBindIndexBuffer(cl.cmd, b.handle, 0, it)
}

// SetPrimitiveTopology only validates: topology is baked into the pipeline.
func (cl *CommandList) SetPrimitiveTopology(t gpu.Topology) {
	if !cl.recording() {
		return
	}
	if cl.pipeline != nil && t != cl.topology {
		cl.fail(core.Violation("topology %d does not match pipeline %q", t, cl.pipeline.name))
	}
}

func (cl *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	if !cl.recording() {
		return
	}
	if cl.pipeline == nil || cl.root == nil {
		cl.fail(core.Violation("draw on %q without pipeline and root signature", cl.name))
		return
	}
	cl.beginPass()
	if cl.err != nil {
		return
	}
	vk.CmdDrawIndexed(cl.cmd, indexCount, instanceCount, startIndex, baseVertex, startInstance)
}

func (cl *CommandList) Release() {
	for a, cmd := range cl.buffers {
		if a.pool != vk.NullCommandPool {
			vk.FreeCommandBuffers(cl.dev.device, a.pool, 1, []vk.CommandBuffer{cmd})
		}
	}
	cl.buffers = map[*CommandAllocator]vk.CommandBuffer{}
}

func layoutFor(s gpu.ResourceState, t *Texture) vk.ImageLayout {
	switch s {
	case gpu.StatePresent:
		return vk.ImageLayoutPresentSrc
	case gpu.StateRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case gpu.StateDepthWrite:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case gpu.StatePixelShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case gpu.StateCopyDest:
		return vk.ImageLayoutTransferDstOptimal
	case gpu.StateGenericRead:
		return vk.ImageLayoutGeneral
	default:
		// a texture's common state is whatever layout it last reached
		return t.layout
	}
}

func stageAccess(l vk.ImageLayout) (vk.PipelineStageFlags, vk.AccessFlags) {
	switch l {
	case vk.ImageLayoutColorAttachmentOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			vk.AccessFlags(vk.AccessShaderReadBit)
	case vk.ImageLayoutTransferDstOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.AccessFlags(vk.AccessTransferWriteBit)
	case vk.ImageLayoutGeneral:
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
			vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
	default:
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 0
	}
}
