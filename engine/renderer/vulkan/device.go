// Package vulkan implements gpu.Device on top of Vulkan.
//
// The device keeps the explicit queue-and-fence model of the gpu package:
// fence values are emulated with pooled VkFences, command allocators are
// command pools, root signatures are pipeline layouts with one descriptor
// set per root parameter, and descriptor handles are (heap, slot) pairs.
package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

const addressBase gpu.GPUAddress = 1 << 32

type Device struct {
	logger *log.Logger
	locks  *VulkanLockPool

	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface

	physical      vk.PhysicalDevice
	properties    vk.PhysicalDeviceProperties
	limits        vk.PhysicalDeviceLimits
	memory        vk.PhysicalDeviceMemoryProperties
	graphicsIndex uint32
	presentIndex  uint32
	depthFormat   vk.Format

	device       vk.Device
	queue        *Queue
	presentQueue vk.Queue
	copyPool     vk.CommandPool

	// shared by every heap slot and root table so the sets stay compatible
	tableLayout   vk.DescriptorSetLayout
	uniformLayout vk.DescriptorSetLayout
	uniforms      *uniformSets

	mu           sync.Mutex
	buffers      map[gpu.GPUAddress]*Buffer
	nextAddress  gpu.GPUAddress
	heaps        map[uint32]*DescriptorHeap
	nextHeap     uint32
	swapChain    *SwapChain
	renderPasses map[renderPassKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
}

// NewDevice creates the instance, picks a physical device that can present
// to the window surface and opens a single graphics queue on it.
func NewDevice(opts Options) (*Device, error) {
	if opts.Surface == nil {
		return nil, core.Violation("vulkan device without a surface")
	}
	d := &Device{
		logger:       core.Logger().With("component", "vulkan"),
		locks:        NewVulkanLockPool(),
		buffers:      map[gpu.GPUAddress]*Buffer{},
		nextAddress:  addressBase,
		heaps:        map[uint32]*DescriptorHeap{},
		renderPasses: map[renderPassKey]vk.RenderPass{},
		framebuffers: map[framebufferKey]vk.Framebuffer{},
	}

	var err error
	if d.instance, err = createInstance(opts); err != nil {
		return nil, err
	}
	if opts.Validation {
		if d.debug, err = createDebugCallback(d.instance); err != nil {
			d.logger.Warn("debug callback unavailable", "err", err)
		}
	}
	if d.surface, err = opts.Surface.CreateSurface(d.instance); err != nil {
		d.Release()
		return nil, fmt.Errorf("create window surface: %w", err)
	}
	if err = d.selectPhysicalDevice(); err != nil {
		d.Release()
		return nil, err
	}
	if err = d.createLogicalDevice(); err != nil {
		d.Release()
		return nil, err
	}
	if err = d.createSharedLayouts(); err != nil {
		d.Release()
		return nil, err
	}
	d.uniforms = newUniformSets(d)
	return d, nil
}

func (d *Device) Name() string {
	return "vulkan: " + cString(d.properties.DeviceName[:])
}

func (d *Device) Queue() gpu.Queue { return d.queue }

func (d *Device) DescriptorHandleIncrementSize(kind gpu.HeapKind) uint32 {
	return 1
}

type physicalCandidate struct {
	device        vk.PhysicalDevice
	properties    vk.PhysicalDeviceProperties
	graphicsIndex uint32
	presentIndex  uint32
	score         int
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if err := check("enumerate physical devices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	if count == 0 {
		return core.NewDeviceError("select physical device", core.ErrNoAdapter)
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("enumerate physical devices", vk.EnumeratePhysicalDevices(d.instance, &count, devices)); err != nil {
		return err
	}

	var best *physicalCandidate
	for _, pd := range devices {
		c, ok := d.evaluate(pd)
		if !ok {
			continue
		}
		if best == nil || c.score > best.score {
			best = c
		}
	}
	if best == nil {
		return core.NewDeviceError("select physical device", core.ErrNoAdapter)
	}

	d.physical = best.device
	d.properties = best.properties
	d.limits = best.properties.Limits
	d.limits.Deref()
	d.graphicsIndex = best.graphicsIndex
	d.presentIndex = best.presentIndex
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &d.memory)
	d.memory.Deref()

	if !d.detectDepthFormat() {
		return core.NewDeviceError("select physical device", fmt.Errorf("%w: no depth-stencil format", core.ErrNoAdapter))
	}

	v := vk.Version(d.properties.ApiVersion)
	d.logger.Info("physical device selected",
		"name", cString(d.properties.DeviceName[:]),
		"type", deviceTypeName(d.properties.DeviceType),
		"api", fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()),
		"graphics", d.graphicsIndex,
		"present", d.presentIndex,
		"depth", d.depthFormat,
	)
	for i := uint32(0); i < d.memory.MemoryHeapCount; i++ {
		h := d.memory.MemoryHeaps[i]
		h.Deref()
		local := vk.MemoryHeapFlagBits(h.Flags)&vk.MemoryHeapDeviceLocalBit != 0
		d.logger.Debug("memory heap", "index", i, "gib", float64(h.Size)/(1<<30), "local", local)
	}
	return nil
}

func (d *Device) evaluate(pd vk.PhysicalDevice) (*physicalCandidate, bool) {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	name := cString(props.DeviceName[:])

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(pd, &features)
	features.Deref()
	if features.SamplerAnisotropy == vk.False {
		d.logger.Debug("skipping device without sampler anisotropy", "name", name)
		return nil, false
	}
	if !hasDeviceExtension(pd, vk.KhrSwapchainExtensionName) {
		d.logger.Debug("skipping device without swap chain support", "name", name)
		return nil, false
	}

	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &familyCount, families)

	graphics, present := -1, -1
	for i := range families {
		families[i].Deref()
		isGraphics := vk.QueueFlagBits(families[i].QueueFlags)&vk.QueueGraphicsBit != 0
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(pd, uint32(i), d.surface, &supportsPresent)
		if isGraphics && supportsPresent == vk.True {
			graphics, present = i, i
			break
		}
		if isGraphics && graphics < 0 {
			graphics = i
		}
		if supportsPresent == vk.True && present < 0 {
			present = i
		}
	}
	if graphics < 0 || present < 0 {
		d.logger.Debug("skipping device without graphics and present queues", "name", name)
		return nil, false
	}

	score := 1
	switch props.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		score += 100
	case vk.PhysicalDeviceTypeIntegratedGpu:
		score += 10
	}
	if graphics == present {
		score += 5
	}
	return &physicalCandidate{
		device:        pd,
		properties:    props,
		graphicsIndex: uint32(graphics),
		presentIndex:  uint32(present),
		score:         score,
	}, true
}

func hasDeviceExtension(pd vk.PhysicalDevice, name string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, nil) != vk.Success {
		return false
	}
	exts := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &count, exts) != vk.Success {
		return false
	}
	for i := range exts {
		exts[i].Deref()
		if cString(exts[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

func deviceTypeName(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	default:
		return "other"
	}
}

// detectDepthFormat prefers the 24-bit depth, 8-bit stencil layout and falls
// back to the other stencil-capable formats.
func (d *Device) detectDepthFormat() bool {
	candidates := []vk.Format{
		vk.FormatD24UnormS8Uint,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD32Sfloat,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range candidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&flags == flags {
			d.depthFormat = f
			return true
		}
	}
	return false
}

func (d *Device) createLogicalDevice() error {
	priorities := []float32{1.0}
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.graphicsIndex,
		QueueCount:       1,
		PQueuePriorities: priorities,
	}}
	if d.presentIndex != d.graphicsIndex {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.presentIndex,
			QueueCount:       1,
			PQueuePriorities: priorities,
		})
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if runtime.GOOS == "darwin" && hasDeviceExtension(d.physical, "VK_KHR_portability_subset") {
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	features := vk.PhysicalDeviceFeatures{SamplerAnisotropy: vk.True}
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}
	if err := check("create device", vk.CreateDevice(d.physical, &info, nil, &d.device)); err != nil {
		return err
	}

	var graphics vk.Queue
	vk.GetDeviceQueue(d.device, d.graphicsIndex, 0, &graphics)
	vk.GetDeviceQueue(d.device, d.presentIndex, 0, &d.presentQueue)
	d.queue = &Queue{dev: d, handle: graphics, pool: fencePool{dev: d}}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.graphicsIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	if err := check("create copy command pool", vk.CreateCommandPool(d.device, &poolInfo, nil, &d.copyPool)); err != nil {
		return err
	}
	d.logger.Info("logical device created")
	return nil
}

func (d *Device) createSharedLayouts() error {
	table := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeSampledImage,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAllGraphics),
	}}
	if err := check("create table set layout", vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    table,
	}, nil, &d.tableLayout)); err != nil {
		return err
	}

	uniform := []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAllGraphics),
	}}
	return check("create uniform set layout", vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    uniform,
	}, nil, &d.uniformLayout))
}

// findMemoryIndex returns the first memory type allowed by typeFilter that
// has every property flag set.
func (d *Device) findMemoryIndex(typeFilter uint32, properties vk.MemoryPropertyFlagBits) (uint32, bool) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		t := d.memory.MemoryTypes[i]
		t.Deref()
		flags := vk.MemoryPropertyFlagBits(t.PropertyFlags)
		if typeFilter&(1<<i) != 0 && flags&properties == properties {
			return i, true
		}
	}
	return 0, false
}

func (d *Device) allocate(reqs vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits, what string) (vk.DeviceMemory, error) {
	reqs.Deref()
	index, ok := d.findMemoryIndex(reqs.MemoryTypeBits, properties)
	if !ok {
		return vk.NullDeviceMemory, core.NewDeviceError("allocate "+what, fmt.Errorf("%w: no memory type with flags %#x", core.ErrOutOfMemory, properties))
	}
	var mem vk.DeviceMemory
	err := check("allocate "+what, vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: index,
	}, nil, &mem))
	return mem, err
}

// submitOnce records fn into a throwaway command buffer, submits it and
// waits for it to retire.
func (d *Device) submitOnce(what string, fn func(cmd vk.CommandBuffer)) error {
	cmds := make([]vk.CommandBuffer, 1)
	if err := check(what, vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.copyPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmds)); err != nil {
		return err
	}
	cmd := cmds[0]
	defer vk.FreeCommandBuffers(d.device, d.copyPool, 1, cmds)

	if err := check(what, vk.BeginCommandBuffer(cmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})); err != nil {
		return err
	}
	fn(cmd)
	if err := check(what, vk.EndCommandBuffer(cmd)); err != nil {
		return err
	}

	fence, err := d.queue.pool.get()
	if err != nil {
		return err
	}
	defer d.queue.pool.put(fence)
	if err := d.queue.submit(what, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    cmds,
	}}, fence); err != nil {
		return err
	}
	return check(what, vk.WaitForFences(d.device, 1, []vk.Fence{fence}, vk.True, math.MaxUint64))
}

func (d *Device) register(b *Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b.address = d.nextAddress
	d.buffers[b.address] = b
	// 64KiB placement alignment
	d.nextAddress += gpu.GPUAddress((b.size + 0xFFFF) &^ 0xFFFF)
}

func (d *Device) forget(b *Buffer) {
	d.mu.Lock()
	delete(d.buffers, b.address)
	d.mu.Unlock()
	d.uniforms.forget(b)
}

// resolve maps a GPU address back to its buffer and byte offset.
func (d *Device) resolve(address gpu.GPUAddress) (*Buffer, uint64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base, b := range d.buffers {
		if address >= base && uint64(address-base) < b.size {
			return b, uint64(address - base), true
		}
	}
	return nil, 0, false
}

// Release waits for the queue to go idle and destroys everything the device
// still owns. Resources created from it must be released first.
func (d *Device) Release() {
	if d.device != nil {
		vk.DeviceWaitIdle(d.device)
		if d.uniforms != nil {
			d.uniforms.release()
		}
		d.destroyRenderTargets()
		if d.queue != nil {
			d.queue.pool.release()
		}
		if d.tableLayout != nil {
			vk.DestroyDescriptorSetLayout(d.device, d.tableLayout, nil)
		}
		if d.uniformLayout != nil {
			vk.DestroyDescriptorSetLayout(d.device, d.uniformLayout, nil)
		}
		if d.copyPool != vk.NullCommandPool {
			vk.DestroyCommandPool(d.device, d.copyPool, nil)
		}
		vk.DestroyDevice(d.device, nil)
		d.device = nil
	}
	if d.instance != nil {
		if d.surface != vk.NullSurface {
			vk.DestroySurface(d.instance, d.surface, nil)
			d.surface = vk.NullSurface
		}
		if d.debug != vk.NullDebugReportCallback {
			vk.DestroyDebugReportCallback(d.instance, d.debug, nil)
			d.debug = vk.NullDebugReportCallback
		}
		vk.DestroyInstance(d.instance, nil)
		d.instance = nil
	}
	d.logger.Info("vulkan device released")
}
