package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// RootSignature is a pipeline layout. Root parameter i is descriptor set i;
// static samplers share the set after the last parameter, each at the
// binding of its shader register.
type RootSignature struct {
	dev           *Device
	desc          gpu.RootLayout
	layout        vk.PipelineLayout
	samplers      []vk.Sampler
	samplerLayout vk.DescriptorSetLayout
	samplerPool   vk.DescriptorPool
	samplerSet    vk.DescriptorSet
}

func (r *RootSignature) Layout() gpu.RootLayout { return r.desc }

func (d *Device) CreateRootSignature(layout gpu.RootLayout) (gpu.RootSignature, error) {
	r := &RootSignature{dev: d, desc: layout}
	setLayouts := make([]vk.DescriptorSetLayout, 0, len(layout.Parameters)+1)
	for i, p := range layout.Parameters {
		switch p.Kind {
		case gpu.RootDescriptorTable:
			if p.DescriptorCount != 1 {
				return nil, core.Violation("root parameter %d: tables of %d descriptors are not supported", i, p.DescriptorCount)
			}
			setLayouts = append(setLayouts, d.tableLayout)
		case gpu.RootConstantBufferView:
			setLayouts = append(setLayouts, d.uniformLayout)
		default:
			return nil, core.Violation("root parameter %d has unknown kind %d", i, p.Kind)
		}
	}
	if len(layout.StaticSamplers) > 0 {
		if err := r.createSamplers(); err != nil {
			r.Release()
			return nil, err
		}
		setLayouts = append(setLayouts, r.samplerLayout)
	}

	if err := check("create pipeline layout", vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}, nil, &r.layout)); err != nil {
		r.Release()
		return nil, err
	}
	return r, nil
}

func (r *RootSignature) createSamplers() error {
	d := r.dev
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(r.desc.StaticSamplers))
	for _, s := range r.desc.StaticSamplers {
		sampler, err := d.createSampler(s)
		if err != nil {
			return err
		}
		r.samplers = append(r.samplers, sampler)
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:            s.ShaderRegister,
			DescriptorType:     vk.DescriptorTypeSampler,
			DescriptorCount:    1,
			StageFlags:         vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
			PImmutableSamplers: []vk.Sampler{sampler},
		})
	}
	if err := check("create sampler set layout", vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &r.samplerLayout)); err != nil {
		return err
	}
	if err := check("create sampler pool", vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeSampler,
			DescriptorCount: uint32(len(bindings)),
		}},
	}, nil, &r.samplerPool)); err != nil {
		return err
	}
	return check("allocate sampler set", vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     r.samplerPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{r.samplerLayout},
	}, &r.samplerSet))
}

func (d *Device) createSampler(s gpu.StaticSampler) (vk.Sampler, error) {
	filter := vk.FilterLinear
	mipmap := vk.SamplerMipmapModeLinear
	if s.Filter == gpu.FilterPoint {
		filter = vk.FilterNearest
		mipmap = vk.SamplerMipmapModeNearest
	}
	address := vk.SamplerAddressModeRepeat
	if s.AddressMode == gpu.AddressClamp {
		address = vk.SamplerAddressModeClampToEdge
	}
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapMode:   mipmap,
		AddressModeU: address,
		AddressModeV: address,
		AddressModeW: address,
		MaxLod:       1000,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
		CompareOp:    vk.CompareOpAlways,
	}
	if s.Filter == gpu.FilterAnisotropic {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = min(float32(max(s.MaxAnisotropy, 1)), d.limits.MaxSamplerAnisotropy)
	}
	var sampler vk.Sampler
	err := check("create sampler", vk.CreateSampler(d.device, &info, nil, &sampler))
	return sampler, err
}

func (r *RootSignature) Release() {
	dev := r.dev.device
	if r.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(dev, r.layout, nil)
		r.layout = vk.NullPipelineLayout
	}
	if r.samplerPool != nil {
		vk.DestroyDescriptorPool(dev, r.samplerPool, nil)
		r.samplerPool = nil
		r.samplerSet = nil
	}
	if r.samplerLayout != nil {
		vk.DestroyDescriptorSetLayout(dev, r.samplerLayout, nil)
		r.samplerLayout = nil
	}
	for _, s := range r.samplers {
		vk.DestroySampler(dev, s, nil)
	}
	r.samplers = nil
}

type PipelineState struct {
	dev      *Device
	name     string
	handle   vk.Pipeline
	topology gpu.Topology
}

func (p *PipelineState) Name() string { return p.name }

func (p *PipelineState) Release() {
	if p.handle != vk.NullPipeline {
		vk.DestroyPipeline(p.dev.device, p.handle, nil)
		p.handle = vk.NullPipeline
	}
}

// colorFormat resolves a render-target format to what the swap chain
// actually presents.
func (d *Device) colorFormat(f gpu.Format) vk.Format {
	d.mu.Lock()
	sc := d.swapChain
	d.mu.Unlock()
	if sc != nil {
		return sc.format
	}
	return vkFormat(f)
}

func (d *Device) depthStencilFormat(f gpu.Format) vk.Format {
	if f == gpu.FormatD24UnormS8Uint {
		return d.depthFormat
	}
	return vkFormat(f)
}

// CreatePipelineState builds a graphics pipeline against the render pass
// the command list will use for the same target formats.
func (d *Device) CreatePipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	root, ok := desc.RootSignature.(*RootSignature)
	if !ok {
		return nil, core.Violation("pipeline %q: foreign root signature %T", desc.Name, desc.RootSignature)
	}
	pass, err := d.renderPass(renderPassKey{
		color: d.colorFormat(desc.RenderTargetFormat),
		depth: d.depthStencilFormat(desc.DepthStencilFormat),
	})
	if err != nil {
		return nil, err
	}

	vs, err := d.newShaderStage(desc.Name+" vs", desc.VertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return nil, pipelineError(desc.Name, err)
	}
	ps, err := d.newShaderStage(desc.Name+" ps", desc.PixelShader, vk.ShaderStageFragmentBit)
	if err != nil {
		d.destroyShaderStages(vs)
		return nil, pipelineError(desc.Name, err)
	}
	defer d.destroyShaderStages(vs, ps)

	attributes := make([]vk.VertexInputAttributeDescription, len(desc.InputLayout))
	for i, el := range desc.InputLayout {
		f := vkFormat(el.Format)
		if f == vk.FormatUndefined {
			return nil, core.Violation("pipeline %q: attribute %s has format %s", desc.Name, el.Semantic, el.Format)
		}
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: uint32(i),
			Binding:  0,
			Format:   f,
			Offset:   el.Offset,
		}
	}

	cull := vk.CullModeFlags(vk.CullModeNone)
	if desc.CullBack {
		cull = vk.CullModeFlags(vk.CullModeBackBit)
	}
	depthState := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLess,
	}
	if desc.DepthTest {
		depthState.DepthTestEnable = vk.True
		depthState.DepthWriteEnable = vk.True
	}
	blend := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
	}
	if desc.AlphaBlend {
		blend.BlendEnable = vk.True
		blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.ColorBlendOp = vk.BlendOpAdd
		blend.SrcAlphaBlendFactor = vk.BlendFactorOne
		blend.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.AlphaBlendOp = vk.BlendOpAdd
	}
	dynamic := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}

	info := vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages:    []vk.PipelineShaderStageCreateInfo{vs.info, ps.info},
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                         vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount: 1,
			PVertexBindingDescriptions: []vk.VertexInputBindingDescription{{
				Binding:   0,
				Stride:    desc.VertexStride,
				InputRate: vk.VertexInputRateVertex,
			}},
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vkTopology(desc.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    cull,
			// the flipped viewport mirrors winding
			FrontFace: vk.FrontFaceClockwise,
			LineWidth: 1,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
			MinSampleShading:     1,
		},
		PDepthStencilState: &depthState,
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: 1,
			PAttachments:    []vk.PipelineColorBlendAttachmentState{blend},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: uint32(len(dynamic)),
			PDynamicStates:    dynamic,
		},
		Layout:     root.layout,
		RenderPass: pass,
		Subpass:    0,
	}

	pipelines := make([]vk.Pipeline, 1)
	err = d.locks.SafeCall(PipelineManagement, func() error {
		return check("create pipeline "+desc.Name, vk.CreateGraphicsPipelines(d.device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pipelines))
	})
	if err != nil {
		return nil, pipelineError(desc.Name, err)
	}
	d.logger.Info("pipeline created", "name", desc.Name, "attributes", len(attributes), "blend", desc.AlphaBlend)
	return &PipelineState{dev: d, name: desc.Name, handle: pipelines[0], topology: desc.Topology}, nil
}

func pipelineError(name string, err error) error {
	if errors.Is(err, core.ErrPipelineBuild) {
		return err
	}
	return core.NewDeviceError("build pipeline "+name, fmt.Errorf("%w: %w", core.ErrPipelineBuild, err))
}
