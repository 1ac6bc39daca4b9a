package loaders

import "fmt"

// ShaderLoader reads compiled .spv stages.
type ShaderLoader struct {
	binary BinaryLoader
}

func (sl *ShaderLoader) Load(path string, assetType ResourceType, params interface{}) (*Resource, error) {
	res, err := sl.binary.Load(path, ResourceTypeShader, params)
	if err != nil {
		return nil, fmt.Errorf("load shader: %w", err)
	}
	return res, nil
}

func (sl *ShaderLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
