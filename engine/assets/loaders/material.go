package loaders

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
)

// MaterialConfig is the on-disk description of a lit material.
type MaterialConfig struct {
	Name           string
	DiffuseAlbedo  math.Vec4
	FresnelR0      math.Vec3
	Roughness      float32
	DiffuseMapName string
}

type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, assetType ResourceType, params interface{}) (*Resource, error) {
	mCfg, err := parseAMTFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     mCfg.Name,
		FullPath: path,
		Type:     ResourceTypeMaterial,
		DataSize: uint64(unsafe.Sizeof(MaterialConfig{})),
		Data:     mCfg,
	}, nil
}

func parseAMTFile(filename string) (*MaterialConfig, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	materialConfig := &MaterialConfig{
		DiffuseAlbedo: math.NewVec4(1, 1, 1, 1),
		FresnelR0:     math.NewVec3(0.01, 0.01, 0.01),
		Roughness:     0.5,
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		// Split key-value pairs by the first "=" sign
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			core.LogWarn("Skipping invalid line: %s", line)
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "name":
			materialConfig.Name = value
		case "diffuse_albedo":
			v, err := parseFloats(value, 4)
			if err != nil {
				return nil, fmt.Errorf("invalid diffuse_albedo: %w", err)
			}
			materialConfig.DiffuseAlbedo = math.NewVec4(v[0], v[1], v[2], v[3])
		case "fresnel_r0":
			v, err := parseFloats(value, 3)
			if err != nil {
				return nil, fmt.Errorf("invalid fresnel_r0: %w", err)
			}
			materialConfig.FresnelR0 = math.NewVec3(v[0], v[1], v[2])
		case "roughness":
			roughness, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid roughness value: %s", value)
			}
			materialConfig.Roughness = float32(roughness)
		case "diffuse_map_name":
			materialConfig.DiffuseMapName = value
		default:
			core.LogError("Unknown key '%s' found in file. Skipping...", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := validateMaterial(materialConfig); err != nil {
		return nil, err
	}
	return materialConfig, nil
}

func parseFloats(value string, want int) ([]float32, error) {
	fields := strings.Fields(value)
	if len(fields) != want {
		return nil, fmt.Errorf("expected %d values, got %q", want, value)
	}
	out := make([]float32, want)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", f, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func validateMaterial(material *MaterialConfig) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}
	v := material.DiffuseAlbedo
	if !inRange(v.X) || !inRange(v.Y) || !inRange(v.Z) || !inRange(v.W) {
		return fmt.Errorf("diffuse_albedo values must be between 0.0 and 1.0")
	}
	f := material.FresnelR0
	if !inRange(f.X) || !inRange(f.Y) || !inRange(f.Z) {
		return fmt.Errorf("fresnel_r0 values must be between 0.0 and 1.0")
	}
	if !inRange(material.Roughness) {
		return fmt.Errorf("roughness must be between 0.0 and 1.0")
	}
	return nil
}

// Check if a float32 value is within [0.0, 1.0]
func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}

func (ml *MaterialLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
