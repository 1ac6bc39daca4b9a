package vulkan

import (
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

type Buffer struct {
	dev      *Device
	name     string
	size     uint64
	address  gpu.GPUAddress
	handle   vk.Buffer
	memory   vk.DeviceMemory
	mapped   []byte
	released atomic.Bool
}

func (b *Buffer) Name() string               { return b.name }
func (b *Buffer) Size() uint64               { return b.size }
func (b *Buffer) GPUAddress() gpu.GPUAddress { return b.address }
func (b *Buffer) Bytes() []byte              { return b.mapped }

func (b *Buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.dev.forget(b)
	b.destroy()
}

func (b *Buffer) destroy() {
	if b.mapped != nil {
		vk.UnmapMemory(b.dev.device, b.memory)
		b.mapped = nil
	}
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(b.dev.device, b.handle, nil)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(b.dev.device, b.memory, nil)
		b.memory = vk.NullDeviceMemory
	}
}

func (d *Device) newBuffer(name string, size uint64, usage vk.BufferUsageFlagBits, props vk.MemoryPropertyFlagBits) (*Buffer, error) {
	if size == 0 {
		return nil, core.Violation("buffer %q has zero size", name)
	}
	b := &Buffer{dev: d, name: name, size: size}
	if err := check("create buffer "+name, vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.handle)); err != nil {
		return nil, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, b.handle, &reqs)
	mem, err := d.allocate(reqs, props, "buffer "+name)
	if err != nil {
		b.destroy()
		return nil, err
	}
	b.memory = mem
	if err := check("bind buffer memory "+name, vk.BindBufferMemory(d.device, b.handle, b.memory, 0)); err != nil {
		b.destroy()
		return nil, err
	}
	return b, nil
}

func (b *Buffer) mapMemory() error {
	var ptr unsafe.Pointer
	if err := check("map buffer "+b.name, vk.MapMemory(b.dev.device, b.memory, 0, vk.DeviceSize(b.size), 0, &ptr)); err != nil {
		return err
	}
	b.mapped = unsafe.Slice((*byte)(ptr), b.size)
	return nil
}

// CreateUploadBuffer returns host-visible, coherent memory that stays mapped
// until Release.
func (d *Device) CreateUploadBuffer(size uint64, name string) (gpu.Buffer, error) {
	b, err := d.newBuffer(name, size,
		vk.BufferUsageUniformBufferBit|vk.BufferUsageVertexBufferBit|vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, err
	}
	if err := b.mapMemory(); err != nil {
		b.destroy()
		return nil, err
	}
	d.register(b)
	d.logger.Debug("upload buffer created", "name", name, "size", size, "address", b.address)
	return b, nil
}

// CreateStaticBuffer copies data through a staging buffer into device-local
// memory and waits for the copy.
func (d *Device) CreateStaticBuffer(data []byte, usage gpu.BufferUsage, name string) (gpu.Buffer, error) {
	size := uint64(len(data))
	staging, err := d.newBuffer(name+" staging", size, vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, err
	}
	defer staging.destroy()
	if err := staging.mapMemory(); err != nil {
		return nil, err
	}
	copy(staging.mapped, data)

	flags := vk.BufferUsageTransferDstBit
	if usage&gpu.BufferUsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&gpu.BufferUsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&gpu.BufferUsageConstant != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	b, err := d.newBuffer(name, size, flags, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return nil, err
	}
	err = d.submitOnce("copy "+name, func(cmd vk.CommandBuffer) {
		vk.CmdCopyBuffer(cmd, staging.handle, b.handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
	})
	if err != nil {
		b.destroy()
		return nil, err
	}
	d.register(b)
	d.logger.Debug("static buffer created", "name", name, "size", size)
	return b, nil
}
