package renderer

import (
	"unsafe"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// ConstantBufferAlignment is the placement alignment of constant buffer views.
const ConstantBufferAlignment = 256

// ConstantBufferByteSize rounds size up to ConstantBufferAlignment.
func ConstantBufferByteSize(size uint64) uint64 {
	return math.AlignUp[uint64](size, ConstantBufferAlignment)
}

// UploadBuffer is a persistently mapped array of T. T must be plain data
// (no pointers, slices or strings) laid out to match the shader side.
type UploadBuffer[T any] struct {
	buffer   gpu.Buffer
	count    int
	stride   uint64
	elemSize uint64
}

// NewUploadBuffer allocates count elements. When constant is set every
// element starts on a ConstantBufferAlignment boundary.
func NewUploadBuffer[T any](device gpu.Device, count int, constant bool, name string) (*UploadBuffer[T], error) {
	if count <= 0 {
		return nil, core.Violation("upload buffer %q with %d elements", name, count)
	}
	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	stride := elemSize
	if constant {
		stride = ConstantBufferByteSize(elemSize)
	}
	buf, err := device.CreateUploadBuffer(stride*uint64(count), name)
	if err != nil {
		return nil, err
	}
	return &UploadBuffer[T]{
		buffer:   buf,
		count:    count,
		stride:   stride,
		elemSize: elemSize,
	}, nil
}

// CopyData writes v into element index.
func (u *UploadBuffer[T]) CopyData(index int, v *T) error {
	if index < 0 || index >= u.count {
		return core.Violation("upload buffer %q: index %d out of range [0,%d)", u.buffer.Name(), index, u.count)
	}
	off := uint64(index) * u.stride
	src := unsafe.Slice((*byte)(unsafe.Pointer(v)), u.elemSize)
	copy(u.buffer.Bytes()[off:off+u.elemSize], src)
	return nil
}

// Element reads element index back from the mapping.
func (u *UploadBuffer[T]) Element(index int) T {
	var out T
	off := uint64(index) * u.stride
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&out)), u.elemSize)
	copy(dst, u.buffer.Bytes()[off:off+u.elemSize])
	return out
}

// Address is the GPU address of element index: base + index * stride.
func (u *UploadBuffer[T]) Address(index int) gpu.GPUAddress {
	return u.buffer.GPUAddress() + gpu.GPUAddress(uint64(index)*u.stride)
}

// Buffer is the underlying mapped buffer, for binding as a vertex stream.
func (u *UploadBuffer[T]) Buffer() gpu.Buffer {
	return u.buffer
}

// Bytes exposes the raw mapping.
func (u *UploadBuffer[T]) Bytes() []byte {
	return u.buffer.Bytes()
}

func (u *UploadBuffer[T]) Stride() uint64 {
	return u.stride
}

func (u *UploadBuffer[T]) Count() int {
	return u.count
}

func (u *UploadBuffer[T]) Release() {
	u.buffer.Release()
}
