package engine

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/platform"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
	"github.com/spaghettifunk/ringrender/engine/renderer/headless"
	"github.com/spaghettifunk/ringrender/engine/renderer/vulkan"
)

func createWindow(cfg *ApplicationConfig, bus *core.EventBus, input *core.InputState) (platform.Window, error) {
	width, height := cfg.WindowSize()
	wc := platform.Config{
		Title:  cfg.Name,
		X:      cfg.StartPosX,
		Y:      cfg.StartPosY,
		Width:  width,
		Height: height,
	}
	switch cfg.Backend() {
	case renderer.Headless:
		return platform.NewHeadlessWindow(wc, bus, cfg.Headless.Frames), nil
	case renderer.Vulkan:
		return platform.NewGLFWWindow(wc, bus, input)
	default:
		return nil, fmt.Errorf("no window for backend %s", cfg.Backend())
	}
}

func createDevice(cfg *ApplicationConfig, window platform.Window) (gpu.Device, error) {
	switch cfg.Backend() {
	case renderer.Headless:
		return headless.NewDevice(headless.Options{
			Latency: time.Duration(cfg.Headless.GPULatency),
		}), nil
	case renderer.Vulkan:
		surface, ok := window.(vulkan.Surface)
		if !ok {
			return nil, fmt.Errorf("%w: window %T cannot create a Vulkan surface", core.ErrNoAdapter, window)
		}
		dev, err := vulkan.NewDevice(vulkan.Options{
			AppName:    cfg.Name,
			Validation: cfg.Renderer.Validation,
			Surface:    surface,
		})
		if err != nil {
			return nil, err
		}
		return dev, nil
	default:
		return nil, fmt.Errorf("no device for backend %s", cfg.Backend())
	}
}
