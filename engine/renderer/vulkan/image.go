package vulkan

import (
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// Texture is a device-local image with one view. Swap-chain buffers are
// proxies: swap is set and the view follows whichever image is acquired.
type Texture struct {
	dev      *Device
	name     string
	width    uint32
	height   uint32
	format   gpu.Format
	vkFormat vk.Format
	depth    bool
	image    vk.Image
	memory   vk.DeviceMemory
	view     vk.ImageView
	layout   vk.ImageLayout
	swap     *SwapChain
	released atomic.Bool
}

func (t *Texture) Name() string       { return t.name }
func (t *Texture) Format() gpu.Format { return t.format }

func (t *Texture) Width() uint32 {
	if t.swap != nil {
		return t.swap.extent.Width
	}
	return t.width
}

func (t *Texture) Height() uint32 {
	if t.swap != nil {
		return t.swap.extent.Height
	}
	return t.height
}

func (t *Texture) imageView() vk.ImageView {
	if t.swap != nil {
		return t.swap.currentView()
	}
	return t.view
}

func (t *Texture) Release() {
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	if t.swap != nil {
		t.swap.releaseProxy()
		return
	}
	t.dev.forgetTarget(t.view)
	t.destroy()
}

func (t *Texture) destroy() {
	dev := t.dev.device
	if t.view != vk.NullImageView {
		vk.DestroyImageView(dev, t.view, nil)
		t.view = vk.NullImageView
	}
	if t.image != vk.NullImage {
		vk.DestroyImage(dev, t.image, nil)
		t.image = vk.NullImage
	}
	if t.memory != vk.NullDeviceMemory {
		vk.FreeMemory(dev, t.memory, nil)
		t.memory = vk.NullDeviceMemory
	}
}

func (d *Device) newImage(t *Texture, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlags) error {
	if t.width == 0 || t.height == 0 {
		return core.Violation("image %q has zero extent", t.name)
	}
	if err := check("create image "+t.name, vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        t.vkFormat,
		Extent:        vk.Extent3D{Width: t.width, Height: t.height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &t.image)); err != nil {
		return err
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, t.image, &reqs)
	mem, err := d.allocate(reqs, vk.MemoryPropertyDeviceLocalBit, "image "+t.name)
	if err != nil {
		t.destroy()
		return err
	}
	t.memory = mem
	if err := check("bind image memory "+t.name, vk.BindImageMemory(d.device, t.image, t.memory, 0)); err != nil {
		t.destroy()
		return err
	}
	t.view, err = d.createView(t.image, t.vkFormat, aspect, t.name)
	if err != nil {
		t.destroy()
		return err
	}
	t.layout = vk.ImageLayoutUndefined
	return nil
}

func (d *Device) createView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlags, name string) (vk.ImageView, error) {
	var view vk.ImageView
	err := check("create image view "+name, vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view))
	return view, err
}

// CreateTexture uploads RGBA8 pixels and leaves the image shader-readable.
func (d *Device) CreateTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	format := vkFormat(desc.Format)
	if format == vk.FormatUndefined || desc.Format.Size() != 4 {
		return nil, core.Violation("texture %q: unsupported format %s", desc.Name, desc.Format)
	}
	size := uint64(desc.Width) * uint64(desc.Height) * 4
	if uint64(len(pixels)) != size {
		return nil, core.Violation("texture %q: %d bytes for %dx%d", desc.Name, len(pixels), desc.Width, desc.Height)
	}
	t := &Texture{
		dev:      d,
		name:     desc.Name,
		width:    desc.Width,
		height:   desc.Height,
		format:   desc.Format,
		vkFormat: format,
	}
	if err := d.newImage(t, vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit, vk.ImageAspectFlags(vk.ImageAspectColorBit)); err != nil {
		return nil, err
	}

	staging, err := d.newBuffer(desc.Name+" staging", size, vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		t.destroy()
		return nil, err
	}
	defer staging.destroy()
	if err := staging.mapMemory(); err != nil {
		t.destroy()
		return nil, err
	}
	copy(staging.mapped, pixels)

	err = d.submitOnce("upload texture "+desc.Name, func(cmd vk.CommandBuffer) {
		cl := &CommandList{dev: d, cmd: cmd}
		cl.transition(t, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
		vk.CmdCopyBufferToImage(cmd, staging.handle, t.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		}})
		cl.transition(t, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	})
	if err != nil {
		t.destroy()
		return nil, err
	}
	d.logger.Debug("texture created", "name", desc.Name, "width", desc.Width, "height", desc.Height)
	return t, nil
}

// CreateDepthStencil creates an attachment in the device's detected depth
// format. The requested format only has to be a depth format.
func (d *Device) CreateDepthStencil(width, height uint32, format gpu.Format) (gpu.Texture, error) {
	if format != gpu.FormatD24UnormS8Uint && format != gpu.FormatD32Float {
		return nil, core.Violation("depth stencil with color format %s", format)
	}
	vkf := d.depthFormat
	if format == gpu.FormatD32Float {
		vkf = vk.FormatD32Sfloat
	}
	t := &Texture{
		dev:      d,
		name:     "depth stencil",
		width:    width,
		height:   height,
		format:   format,
		vkFormat: vkf,
		depth:    true,
	}
	if err := d.newImage(t, vk.ImageUsageDepthStencilAttachmentBit, depthAspect(vkf)); err != nil {
		return nil, err
	}
	return t, nil
}
