package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
)

const shaderEntryPoint = "main\x00"

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

type shaderStage struct {
	module vk.ShaderModule
	info   vk.PipelineShaderStageCreateInfo
}

func (d *Device) newShaderStage(name string, code []uint32, stage vk.ShaderStageFlagBits) (shaderStage, error) {
	if len(code) == 0 || code[0] != spirvMagic {
		return shaderStage{}, core.NewDeviceError("create shader "+name, core.ErrPipelineBuild)
	}
	var module vk.ShaderModule
	if err := check("create shader "+name, vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}, nil, &module)); err != nil {
		return shaderStage{}, err
	}
	return shaderStage{
		module: module,
		info: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  stage,
			Module: module,
			PName:  shaderEntryPoint,
		},
	}, nil
}

func (d *Device) destroyShaderStages(stages ...shaderStage) {
	for _, s := range stages {
		if s.module != vk.NullShaderModule {
			vk.DestroyShaderModule(d.device, s.module, nil)
		}
	}
}
