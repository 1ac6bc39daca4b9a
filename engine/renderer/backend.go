package renderer

import (
	"fmt"
	"strings"
)

// BackendType selects the gpu.Device implementation.
type BackendType uint8

const (
	Vulkan BackendType = iota
	Headless
)

func (b BackendType) String() string {
	switch b {
	case Vulkan:
		return "vulkan"
	case Headless:
		return "headless"
	default:
		return fmt.Sprintf("backend(%d)", b)
	}
}

func ParseBackendType(s string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vulkan", "":
		return Vulkan, nil
	case "headless":
		return Headless, nil
	default:
		return 0, fmt.Errorf("unknown renderer backend %q", s)
	}
}
