package loaders

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

type TextureLoader struct{}

func (tl *TextureLoader) Load(path string, assetType ResourceType, params interface{}) (*Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}

	var p ImageResourceParams
	if typed, ok := params.(*ImageResourceParams); ok && typed != nil {
		p = *typed
	}
	data := ToRGBA(img, p.FlipY, p.MaxSize)

	return &Resource{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		Type:     ResourceTypeImage,
		DataSize: uint64(len(data.Pixels)),
		Data:     data,
	}, nil
}

func (tl *TextureLoader) Unload(res *Resource) error {
	res.Data = nil
	return nil
}
