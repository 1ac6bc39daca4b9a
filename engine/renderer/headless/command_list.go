package headless

import (
	"sync/atomic"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

type Op string

const (
	OpBarrier          Op = "ResourceBarrier"
	OpSetViewport      Op = "SetViewport"
	OpSetScissor       Op = "SetScissorRect"
	OpClearRTV         Op = "ClearRenderTargetView"
	OpClearDSV         Op = "ClearDepthStencilView"
	OpSetRenderTargets Op = "SetRenderTargets"
	OpSetHeaps         Op = "SetDescriptorHeaps"
	OpSetRootSignature Op = "SetGraphicsRootSignature"
	OpSetPipeline      Op = "SetPipelineState"
	OpSetRootTable     Op = "SetGraphicsRootDescriptorTable"
	OpSetRootCBV       Op = "SetGraphicsRootConstantBufferView"
	OpSetVertexBuffer  Op = "SetVertexBuffer"
	OpSetIndexBuffer   Op = "SetIndexBuffer"
	OpSetTopology      Op = "SetPrimitiveTopology"
	OpDraw             Op = "DrawIndexedInstanced"
)

type DrawArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	StartIndex    uint32
	BaseVertex    int32
	StartInstance uint32
}

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op       Op
	Resource string
	Before   gpu.ResourceState
	After    gpu.ResourceState
	Viewport gpu.Viewport
	Rect     gpu.Rect
	Color    gpu.Color
	Depth    float32
	Handle   gpu.DescriptorHandle
	Handle2  gpu.DescriptorHandle
	Slot     uint32
	Address  gpu.GPUAddress
	Pipeline string
	Topology gpu.Topology
	Draw     DrawArgs
}

type CommandAllocator struct {
	outstanding atomic.Int64
	resets      int
}

// Reset fails while the device still holds lists recorded from a.
func (a *CommandAllocator) Reset() error {
	if n := a.outstanding.Load(); n > 0 {
		return core.Violation("command allocator reset with %d list(s) still executing", n)
	}
	a.resets++
	return nil
}

func (a *CommandAllocator) Resets() int {
	return a.resets
}

func (a *CommandAllocator) Release() {}

// CommandList records calls and validates that draws have their state bound.
// Violations surface from Close.
type CommandList struct {
	name     string
	alloc    *CommandAllocator
	open     bool
	commands []Command
	err      error

	rootSignature bool
	pipeline      bool
	vertexBuffer  bool
	indexBuffer   bool
	renderTarget  bool
}

func (l *CommandList) Reset(alloc gpu.CommandAllocator, initial gpu.PipelineState) error {
	if l.open {
		return core.Violation("command list %q reset while open", l.name)
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return core.Violation("foreign command allocator %T", alloc)
	}
	l.alloc = a
	l.open = true
	l.err = nil
	// never reuse the backing array, the queue may still hold the old one
	l.commands = nil
	l.rootSignature, l.vertexBuffer, l.indexBuffer, l.renderTarget = false, false, false, false
	l.pipeline = initial != nil
	if initial != nil {
		l.push(Command{Op: OpSetPipeline, Pipeline: initial.Name()})
	}
	return nil
}

func (l *CommandList) Close() error {
	if !l.open {
		return core.Violation("command list %q closed twice", l.name)
	}
	l.open = false
	return l.err
}

// Commands returns the calls recorded since the last Reset.
func (l *CommandList) Commands() []Command {
	return l.commands
}

func (l *CommandList) push(c Command) {
	if !l.open && l.err == nil {
		l.err = core.Violation("command list %q recorded while closed", l.name)
	}
	l.commands = append(l.commands, c)
}

func (l *CommandList) violate(format string, args ...interface{}) {
	if l.err == nil {
		l.err = core.Violation(format, args...)
	}
}

func (l *CommandList) ResourceBarrier(res gpu.Texture, before, after gpu.ResourceState) {
	l.push(Command{Op: OpBarrier, Resource: res.Name(), Before: before, After: after})
}

func (l *CommandList) SetViewport(vp gpu.Viewport) {
	l.push(Command{Op: OpSetViewport, Viewport: vp})
}

func (l *CommandList) SetScissorRect(r gpu.Rect) {
	l.push(Command{Op: OpSetScissor, Rect: r})
}

func (l *CommandList) ClearRenderTargetView(rtv gpu.DescriptorHandle, color gpu.Color) {
	l.push(Command{Op: OpClearRTV, Handle: rtv, Color: color})
}

func (l *CommandList) ClearDepthStencilView(dsv gpu.DescriptorHandle, depth float32, stencil uint8) {
	l.push(Command{Op: OpClearDSV, Handle: dsv, Depth: depth, Slot: uint32(stencil)})
}

func (l *CommandList) SetRenderTargets(rtv gpu.DescriptorHandle, dsv gpu.DescriptorHandle) {
	l.renderTarget = true
	l.push(Command{Op: OpSetRenderTargets, Handle: rtv, Handle2: dsv})
}

func (l *CommandList) SetDescriptorHeaps(heaps ...gpu.DescriptorHeap) {
	c := Command{Op: OpSetHeaps}
	if len(heaps) > 0 {
		c.Handle = heaps[0].Start()
	}
	l.push(c)
}

func (l *CommandList) SetGraphicsRootSignature(rs gpu.RootSignature) {
	l.rootSignature = true
	l.push(Command{Op: OpSetRootSignature})
}

func (l *CommandList) SetPipelineState(pso gpu.PipelineState) {
	l.pipeline = true
	l.push(Command{Op: OpSetPipeline, Pipeline: pso.Name()})
}

func (l *CommandList) SetGraphicsRootDescriptorTable(slot uint32, base gpu.DescriptorHandle) {
	if !l.rootSignature {
		l.violate("root descriptor table set before root signature")
	}
	l.push(Command{Op: OpSetRootTable, Slot: slot, Handle: base})
}

func (l *CommandList) SetGraphicsRootConstantBufferView(slot uint32, address gpu.GPUAddress) {
	if !l.rootSignature {
		l.violate("root constant buffer view set before root signature")
	}
	l.push(Command{Op: OpSetRootCBV, Slot: slot, Address: address})
}

func (l *CommandList) SetVertexBuffer(view gpu.VertexBufferView) {
	l.vertexBuffer = view.Buffer != nil
	c := Command{Op: OpSetVertexBuffer}
	if view.Buffer != nil {
		c.Resource = view.Buffer.Name()
		c.Address = view.Buffer.GPUAddress()
	}
	l.push(c)
}

func (l *CommandList) SetIndexBuffer(view gpu.IndexBufferView) {
	l.indexBuffer = view.Buffer != nil
	c := Command{Op: OpSetIndexBuffer}
	if view.Buffer != nil {
		c.Resource = view.Buffer.Name()
		c.Address = view.Buffer.GPUAddress()
	}
	l.push(c)
}

func (l *CommandList) SetPrimitiveTopology(t gpu.Topology) {
	l.push(Command{Op: OpSetTopology, Topology: t})
}

func (l *CommandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	switch {
	case !l.rootSignature:
		l.violate("draw without a root signature")
	case !l.pipeline:
		l.violate("draw without a pipeline state")
	case !l.vertexBuffer || !l.indexBuffer:
		l.violate("draw without vertex/index buffers")
	case !l.renderTarget:
		l.violate("draw without render targets")
	}
	l.push(Command{Op: OpDraw, Draw: DrawArgs{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		StartIndex:    startIndex,
		BaseVertex:    baseVertex,
		StartInstance: startInstance,
	}})
}

func (l *CommandList) Release() {}
