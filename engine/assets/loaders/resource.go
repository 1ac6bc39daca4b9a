package loaders

type ResourceType int

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeShader
	ResourceTypeImage
	ResourceTypeBitmapFont
	ResourceTypeSystemFont
	ResourceTypeMaterial
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeImage:
		return "image"
	case ResourceTypeBitmapFont:
		return "bitmap-font"
	case ResourceTypeSystemFont:
		return "system-font"
	case ResourceTypeMaterial:
		return "material"
	default:
		return "none"
	}
}

// Resource is what every loader hands back. Data holds the typed payload:
// []uint32 for shaders, *ImageData for images, *FontAtlas for fonts and
// *MaterialConfig for materials.
type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	DataSize uint64
	Data     interface{}
}
