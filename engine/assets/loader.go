package assets

import "github.com/spaghettifunk/ringrender/engine/assets/loaders"

type Loader interface {
	Load(path string, assetType loaders.ResourceType, params interface{}) (*loaders.Resource, error) // `interface{}` here allows loaders to return various asset types
	Unload(*loaders.Resource) error
}
