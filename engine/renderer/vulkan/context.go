package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Surface is the window side of the device: it loads the Vulkan entry point
// and creates the presentation surface.
type Surface interface {
	// InstanceProcAddr returns vkGetInstanceProcAddr.
	InstanceProcAddr() unsafe.Pointer
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

type Options struct {
	AppName    string
	Validation bool
	Surface    Surface
}

func createInstance(opts Options) (vk.Instance, error) {
	procAddr := opts.Surface.InstanceProcAddr()
	if procAddr == nil {
		return nil, fmt.Errorf("%w: vkGetInstanceProcAddr is nil", core.ErrNoAdapter)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrNoAdapter, err)
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(opts.AppName),
		PEngineName:        VulkanSafeString("ringrender"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := append([]string{"VK_KHR_surface"}, opts.Surface.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if opts.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if layerAvailable(validationLayer) {
			layers = append(layers, validationLayer)
		} else {
			core.LogWarn("validation requested but %s is not installed", validationLayer)
		}
	}
	for _, ext := range extensions {
		core.LogDebug("instance extension: %s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := check("create instance", vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}
	core.LogInfo("Vulkan instance created.")
	return instance, nil
}

func layerAvailable(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func createDebugCallback(instance vk.Instance) (vk.DebugReportCallback, error) {
	info := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}
	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(instance, &info, nil, &dbg)); err != nil {
		return dbg, err
	}
	core.LogDebug("Vulkan debug callback created.")
	return dbg, nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	logger := core.Logger().With("component", "vulkan", "layer", pLayerPrefix, "code", messageCode)
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		logger.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		logger.Warn(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		logger.Warn(pMessage, "performance", true)
	default:
		logger.Debug(pMessage)
	}
	return vk.Bool32(vk.False)
}
