package vulkan

import "sync"

type LockGroup string

const (
	QueueManagement      LockGroup = "queue_management"
	PipelineManagement   LockGroup = "pipeline_management"
	DescriptorManagement LockGroup = "descriptor_management"
	MemoryManagement     LockGroup = "memory_management"
)

// VulkanLockPool serializes access to externally synchronized Vulkan
// objects, one mutex per group.
type VulkanLockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	l, ok := vs.locks[group]
	if !ok {
		l = &sync.Mutex{}
		vs.locks[group] = l
	}
	vs.mu.Unlock()
	l.Lock()
	return l
}

// SafeCall runs fn holding the group's mutex.
func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	defer l.Unlock()
	return fn()
}
