package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// SwapChain presents through a VkSwapchainKHR. Its buffers are proxies: the
// physical image is acquired when a buffer transitions to RenderTarget, and
// the submit that renders it waits on the acquire semaphore and signals the
// semaphore Present waits on.
type SwapChain struct {
	dev        *Device
	handle     vk.Swapchain
	requested  gpu.Format
	format     vk.Format
	colorSpace vk.ColorSpace
	extent     vk.Extent2D
	vsync      bool
	stale      bool
	count      int

	images      []vk.Image
	views       []vk.ImageView
	renderDone  []vk.Semaphore
	acquireSems []vk.Semaphore
	nextAcquire int

	current    uint32
	acquired   bool
	submitted  bool
	acquireSem vk.Semaphore
	proxies    int
}

func (d *Device) CreateSwapChain(desc gpu.SwapChainDesc) (gpu.SwapChain, error) {
	d.mu.Lock()
	exists := d.swapChain != nil
	d.mu.Unlock()
	if exists {
		return nil, core.Violation("device already owns a swap chain")
	}
	if desc.BufferCount < 2 {
		return nil, core.Violation("swap chain needs at least 2 buffers, got %d", desc.BufferCount)
	}
	sc := &SwapChain{
		dev:       d,
		requested: desc.Format,
		vsync:     desc.VSync,
		count:     desc.BufferCount,
	}
	if err := sc.create(desc.Width, desc.Height); err != nil {
		sc.destroy()
		return nil, err
	}
	d.mu.Lock()
	d.swapChain = sc
	d.mu.Unlock()
	return sc, nil
}

func (sc *SwapChain) BufferCount() int { return sc.count }

// Buffer returns a proxy for logical buffer i. Every proxy must be released
// before ResizeBuffers.
func (sc *SwapChain) Buffer(i int) (gpu.Texture, error) {
	if i < 0 || i >= sc.count {
		return nil, core.Violation("swap chain buffer %d of %d", i, sc.count)
	}
	sc.proxies++
	return &Texture{
		dev:      sc.dev,
		name:     fmt.Sprintf("back buffer %d", i),
		format:   sc.requested,
		vkFormat: sc.format,
		swap:     sc,
	}, nil
}

func (sc *SwapChain) releaseProxy() {
	sc.proxies--
}

func (sc *SwapChain) ResizeBuffers(count int, width, height uint32, format gpu.Format) error {
	if sc.proxies > 0 {
		return core.Violation("resize with %d back buffer reference(s) alive", sc.proxies)
	}
	if count < 2 {
		return core.Violation("swap chain needs at least 2 buffers, got %d", count)
	}
	if width == 0 || height == 0 {
		return core.Violation("swap chain resized to %dx%d", width, height)
	}
	sc.count = count
	if format != gpu.FormatUnknown {
		sc.requested = format
	}
	vk.DeviceWaitIdle(sc.dev.device)
	return sc.create(width, height)
}

// create builds (or rebuilds) the swapchain, retiring the previous one.
func (sc *SwapChain) create(width, height uint32) error {
	d := sc.dev
	var caps vk.SurfaceCapabilities
	if err := check("surface capabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps)); err != nil {
		return err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	if extent.Width == 0 || extent.Height == 0 {
		return core.Violation("surface has zero extent")
	}

	imageCount := max(uint32(sc.count), caps.MinImageCount)
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	surfaceFormat, err := sc.chooseFormat()
	if err != nil {
		return err
	}
	presentMode := sc.choosePresentMode()

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     sc.handle,
	}
	if d.graphicsIndex != d.presentIndex {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{d.graphicsIndex, d.presentIndex}
	}

	var handle vk.Swapchain
	if err := check("create swapchain", vk.CreateSwapchain(d.device, &info, nil, &handle)); err != nil {
		return err
	}
	sc.destroyImages()
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.device, sc.handle, nil)
	}
	sc.handle = handle
	sc.format = surfaceFormat.Format
	sc.colorSpace = surfaceFormat.ColorSpace
	sc.extent = extent
	sc.stale = false
	sc.acquired = false

	var n uint32
	if err := check("swapchain images", vk.GetSwapchainImages(d.device, handle, &n, nil)); err != nil {
		return err
	}
	sc.images = make([]vk.Image, n)
	if err := check("swapchain images", vk.GetSwapchainImages(d.device, handle, &n, sc.images)); err != nil {
		return err
	}
	sc.views = make([]vk.ImageView, n)
	for i, img := range sc.images {
		if sc.views[i], err = d.createView(img, sc.format, vk.ImageAspectFlags(vk.ImageAspectColorBit), "swapchain"); err != nil {
			return err
		}
	}
	if sc.renderDone, err = d.createSemaphores(int(n)); err != nil {
		return err
	}
	if sc.acquireSems, err = d.createSemaphores(int(n) + 3); err != nil {
		return err
	}
	sc.nextAcquire = 0

	d.logger.Info("swapchain created",
		"width", extent.Width,
		"height", extent.Height,
		"images", n,
		"format", sc.format,
		"present_mode", presentModeName(presentMode),
	)
	return nil
}

func (sc *SwapChain) chooseFormat() (vk.SurfaceFormat, error) {
	d := sc.dev
	var n uint32
	if err := check("surface formats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &n, nil)); err != nil {
		return vk.SurfaceFormat{}, err
	}
	if n == 0 {
		return vk.SurfaceFormat{}, core.NewDeviceError("surface formats", core.ErrPresentFailed)
	}
	formats := make([]vk.SurfaceFormat, n)
	if err := check("surface formats", vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &n, formats)); err != nil {
		return vk.SurfaceFormat{}, err
	}
	for i := range formats {
		formats[i].Deref()
	}
	for _, want := range []vk.Format{vkFormat(sc.requested), vk.FormatB8g8r8a8Unorm} {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
				return f, nil
			}
		}
	}
	return formats[0], nil
}

func (sc *SwapChain) choosePresentMode() vk.PresentMode {
	if sc.vsync {
		return vk.PresentModeFifo
	}
	d := sc.dev
	var n uint32
	if vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &n, nil) != vk.Success {
		return vk.PresentModeFifo
	}
	modes := make([]vk.PresentMode, n)
	if vk.GetPhysicalDeviceSurfacePresentModes(d.physical, d.surface, &n, modes) != vk.Success {
		return vk.PresentModeFifo
	}
	for _, want := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return vk.PresentModeFifo
}

func presentModeName(m vk.PresentMode) string {
	switch m {
	case vk.PresentModeMailbox:
		return "mailbox"
	case vk.PresentModeImmediate:
		return "immediate"
	case vk.PresentModeFifoRelaxed:
		return "fifo_relaxed"
	default:
		return "fifo"
	}
}

func (d *Device) createSemaphores(n int) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, n)
	for i := range out {
		if err := check("create semaphore", vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
			SType: vk.StructureTypeSemaphoreCreateInfo,
		}, nil, &out[i])); err != nil {
			return out, err
		}
	}
	return out, nil
}

// acquire picks the next presentable image. An out-of-date swapchain is
// rebuilt at the surface's current extent and acquired again.
func (sc *SwapChain) acquire() error {
	if sc.acquired {
		return nil
	}
	for attempt := 0; ; attempt++ {
		if sc.stale {
			vk.DeviceWaitIdle(sc.dev.device)
			if err := sc.create(sc.extent.Width, sc.extent.Height); err != nil {
				return err
			}
		}
		sem := sc.acquireSems[sc.nextAcquire]
		var index uint32
		res := vk.AcquireNextImage(sc.dev.device, sc.handle, math.MaxUint64, sem, vk.NullFence, &index)
		if res == vk.ErrorOutOfDate && attempt == 0 {
			sc.dev.logger.Debug("swapchain out of date on acquire, recreating")
			sc.stale = true
			continue
		}
		if err := check("acquire next image", res); err != nil {
			return err
		}
		sc.nextAcquire = (sc.nextAcquire + 1) % len(sc.acquireSems)
		sc.current = index
		sc.acquireSem = sem
		sc.acquired = true
		sc.submitted = false
		return nil
	}
}

func (sc *SwapChain) currentView() vk.ImageView {
	return sc.views[sc.current]
}

func (sc *SwapChain) acquireSemaphore() vk.Semaphore {
	return sc.acquireSem
}

func (sc *SwapChain) renderSemaphore() vk.Semaphore {
	sc.submitted = true
	return sc.renderDone[sc.current]
}

// Present queues the acquired image. The interval only chooses between vsync
// and the fastest mode; a change takes effect at the next acquire.
func (sc *SwapChain) Present(syncInterval int) error {
	if !sc.acquired || !sc.submitted {
		return core.Violation("present without a rendered back buffer")
	}
	if vsync := syncInterval > 0; vsync != sc.vsync {
		sc.vsync = vsync
		sc.stale = true
	}
	d := sc.dev
	var res vk.Result
	_ = d.locks.SafeCall(QueueManagement, func() error {
		res = vk.QueuePresent(d.presentQueue, &vk.PresentInfo{
			SType:              vk.StructureTypePresentInfo,
			WaitSemaphoreCount: 1,
			PWaitSemaphores:    []vk.Semaphore{sc.renderDone[sc.current]},
			SwapchainCount:     1,
			PSwapchains:        []vk.Swapchain{sc.handle},
			PImageIndices:      []uint32{sc.current},
		})
		return nil
	})
	sc.acquired = false
	sc.submitted = false
	switch {
	case res == vk.ErrorOutOfDate:
		d.logger.Warn("swapchain out of date on present")
		sc.stale = true
		return nil
	case res == vk.Suboptimal:
		return nil
	case res == vk.ErrorDeviceLost:
		return check("present", res)
	case !VulkanResultIsSuccess(res):
		return core.NewDeviceError("present", fmt.Errorf("%w: %s", core.ErrPresentFailed, VulkanResultString(res)))
	}
	return nil
}

func (sc *SwapChain) destroyImages() {
	d := sc.dev
	for _, v := range sc.views {
		d.forgetTarget(v)
		vk.DestroyImageView(d.device, v, nil)
	}
	for _, s := range sc.renderDone {
		vk.DestroySemaphore(d.device, s, nil)
	}
	for _, s := range sc.acquireSems {
		vk.DestroySemaphore(d.device, s, nil)
	}
	sc.views, sc.images = nil, nil
	sc.renderDone, sc.acquireSems = nil, nil
}

func (sc *SwapChain) destroy() {
	sc.destroyImages()
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.dev.device, sc.handle, nil)
		sc.handle = vk.NullSwapchain
	}
}

func (sc *SwapChain) Release() {
	vk.DeviceWaitIdle(sc.dev.device)
	sc.destroy()
	sc.dev.mu.Lock()
	if sc.dev.swapChain == sc {
		sc.dev.swapChain = nil
	}
	sc.dev.mu.Unlock()
}

func clamp(v, lo, hi uint32) uint32 {
	return min(max(v, lo), hi)
}
