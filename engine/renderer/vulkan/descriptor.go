package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

const uniformPoolSize = 256

// DescriptorHeap maps heap slots to descriptor sets. A shader-resource heap
// owns one single-image set per slot; render-target and depth heaps only
// remember which texture each slot views.
type DescriptorHeap struct {
	dev      *Device
	id       uint32
	kind     gpu.HeapKind
	pool     vk.DescriptorPool
	sets     []vk.DescriptorSet
	textures []*Texture
}

func (d *Device) CreateDescriptorHeap(kind gpu.HeapKind, capacity int) (gpu.DescriptorHeap, error) {
	if capacity <= 0 {
		return nil, core.Violation("%s heap with capacity %d", kind, capacity)
	}
	h := &DescriptorHeap{dev: d, kind: kind, textures: make([]*Texture, capacity)}
	if kind == gpu.HeapShaderResource {
		if err := h.allocateSets(capacity); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	d.nextHeap++
	h.id = d.nextHeap
	d.heaps[h.id] = h
	d.mu.Unlock()
	d.logger.Debug("descriptor heap created", "kind", kind, "capacity", capacity)
	return h, nil
}

func (h *DescriptorHeap) allocateSets(capacity int) error {
	d := h.dev
	return d.locks.SafeCall(DescriptorManagement, func() error {
		if err := check("create descriptor pool", vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       uint32(capacity),
			PoolSizeCount: 1,
			PPoolSizes: []vk.DescriptorPoolSize{{
				Type:            vk.DescriptorTypeSampledImage,
				DescriptorCount: uint32(capacity),
			}},
		}, nil, &h.pool)); err != nil {
			return err
		}
		layouts := make([]vk.DescriptorSetLayout, capacity)
		for i := range layouts {
			layouts[i] = d.tableLayout
		}
		h.sets = make([]vk.DescriptorSet, capacity)
		return check("allocate descriptor sets", vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     h.pool,
			DescriptorSetCount: uint32(capacity),
			PSetLayouts:        layouts,
		}, &h.sets[0]))
	})
}

func (h *DescriptorHeap) Kind() gpu.HeapKind { return h.kind }
func (h *DescriptorHeap) Capacity() int      { return len(h.textures) }

func (h *DescriptorHeap) Start() gpu.DescriptorHandle {
	return gpu.DescriptorHandle(uint64(h.id) << 32)
}

func (h *DescriptorHeap) slot(index int, kind gpu.HeapKind, tex gpu.Texture) (*Texture, error) {
	if h.kind != kind {
		return nil, core.Violation("%s view written to a %s heap", kind, h.kind)
	}
	if index < 0 || index >= len(h.textures) {
		return nil, core.Violation("descriptor index %d outside %s heap of %d", index, h.kind, len(h.textures))
	}
	t, ok := tex.(*Texture)
	if !ok {
		return nil, core.Violation("foreign texture %T", tex)
	}
	return t, nil
}

func (h *DescriptorHeap) CreateShaderResourceView(tex gpu.Texture, index int) (gpu.DescriptorHandle, error) {
	t, err := h.slot(index, gpu.HeapShaderResource, tex)
	if err != nil {
		return 0, err
	}
	if t.depth || t.swap != nil {
		return 0, core.Violation("texture %q cannot be sampled", t.name)
	}
	h.textures[index] = t
	vk.UpdateDescriptorSets(h.dev.device, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[index],
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeSampledImage,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   t.view,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}}, 0, nil)
	return h.Start().Offset(index, 1), nil
}

func (h *DescriptorHeap) CreateRenderTargetView(tex gpu.Texture, index int) (gpu.DescriptorHandle, error) {
	t, err := h.slot(index, gpu.HeapRenderTarget, tex)
	if err != nil {
		return 0, err
	}
	if t.depth {
		return 0, core.Violation("depth texture %q used as render target", t.name)
	}
	h.textures[index] = t
	return h.Start().Offset(index, 1), nil
}

func (h *DescriptorHeap) CreateDepthStencilView(tex gpu.Texture, index int) (gpu.DescriptorHandle, error) {
	t, err := h.slot(index, gpu.HeapDepthStencil, tex)
	if err != nil {
		return 0, err
	}
	if !t.depth {
		return 0, core.Violation("color texture %q used as depth stencil", t.name)
	}
	h.textures[index] = t
	return h.Start().Offset(index, 1), nil
}

func (h *DescriptorHeap) Release() {
	d := h.dev
	d.mu.Lock()
	delete(d.heaps, h.id)
	d.mu.Unlock()
	if h.pool != nil {
		vk.DestroyDescriptorPool(d.device, h.pool, nil)
		h.pool = nil
	}
	h.sets, h.textures = nil, nil
}

func (d *Device) lookup(handle gpu.DescriptorHandle, kind gpu.HeapKind) (*DescriptorHeap, int, error) {
	id, index := uint32(handle>>32), int(uint32(handle))
	d.mu.Lock()
	h, ok := d.heaps[id]
	d.mu.Unlock()
	if !ok {
		return nil, 0, core.Violation("descriptor handle %#x names no live heap", uint64(handle))
	}
	if h.kind != kind {
		return nil, 0, core.Violation("descriptor handle %#x is %s, want %s", uint64(handle), h.kind, kind)
	}
	if index >= len(h.textures) || h.textures[index] == nil {
		return nil, 0, core.Violation("descriptor handle %#x is empty", uint64(handle))
	}
	return h, index, nil
}

// viewTexture resolves a render-target or depth-stencil handle.
func (d *Device) viewTexture(handle gpu.DescriptorHandle, kind gpu.HeapKind) (*Texture, error) {
	h, index, err := d.lookup(handle, kind)
	if err != nil {
		return nil, err
	}
	return h.textures[index], nil
}

func (d *Device) tableSet(handle gpu.DescriptorHandle) (vk.DescriptorSet, error) {
	h, index, err := d.lookup(handle, gpu.HeapShaderResource)
	if err != nil {
		return nil, err
	}
	return h.sets[index], nil
}

type uniformSet struct {
	set    vk.DescriptorSet
	pool   vk.DescriptorPool
	buffer *Buffer
}

// uniformSets caches one uniform-buffer descriptor set per bound address.
// Sets are freed with their buffer.
type uniformSets struct {
	dev   *Device
	mu    sync.Mutex
	pools []vk.DescriptorPool
	sets  map[gpu.GPUAddress]uniformSet
}

func newUniformSets(d *Device) *uniformSets {
	return &uniformSets{dev: d, sets: map[gpu.GPUAddress]uniformSet{}}
}

func (u *uniformSets) set(address gpu.GPUAddress) (vk.DescriptorSet, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if s, ok := u.sets[address]; ok {
		return s.set, nil
	}
	b, offset, ok := u.dev.resolve(address)
	if !ok {
		return nil, core.Violation("constant buffer address %#x is not mapped", uint64(address))
	}
	if align := uint64(u.dev.limits.MinUniformBufferOffsetAlignment); align > 1 && offset%align != 0 {
		return nil, core.Violation("constant buffer offset %d is not %d-aligned", offset, align)
	}

	set, pool, err := u.allocate()
	if err != nil {
		return nil, err
	}
	span := min(b.size-offset, uint64(u.dev.limits.MaxUniformBufferRange))
	vk.UpdateDescriptorSets(u.dev.device, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: b.handle,
			Offset: vk.DeviceSize(offset),
			Range:  vk.DeviceSize(span),
		}},
	}}, 0, nil)
	u.sets[address] = uniformSet{set: set, pool: pool, buffer: b}
	return set, nil
}

// allocate takes a set from the newest pool, growing the chain when it runs
// dry. Caller holds u.mu.
func (u *uniformSets) allocate() (vk.DescriptorSet, vk.DescriptorPool, error) {
	if n := len(u.pools); n > 0 {
		if set, err := u.allocateFrom(u.pools[n-1]); err == nil {
			return set, u.pools[n-1], nil
		}
	}
	var pool vk.DescriptorPool
	if err := check("create uniform descriptor pool", vk.CreateDescriptorPool(u.dev.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       uniformPoolSize,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: uniformPoolSize,
		}},
	}, nil, &pool)); err != nil {
		return nil, nil, err
	}
	u.pools = append(u.pools, pool)
	set, err := u.allocateFrom(pool)
	return set, pool, err
}

func (u *uniformSets) allocateFrom(pool vk.DescriptorPool) (vk.DescriptorSet, error) {
	sets := make([]vk.DescriptorSet, 1)
	err := check("allocate uniform descriptor set", vk.AllocateDescriptorSets(u.dev.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{u.dev.uniformLayout},
	}, &sets[0]))
	return sets[0], err
}

func (u *uniformSets) forget(b *Buffer) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for addr, s := range u.sets {
		if s.buffer == b {
			vk.FreeDescriptorSets(u.dev.device, s.pool, 1, &s.set)
			delete(u.sets, addr)
		}
	}
}

func (u *uniformSets) release() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, p := range u.pools {
		vk.DestroyDescriptorPool(u.dev.device, p, nil)
	}
	u.pools = nil
	u.sets = map[gpu.GPUAddress]uniformSet{}
}
