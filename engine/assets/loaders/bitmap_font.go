package loaders

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/fzipp/bmfont"
)

// BitmapFontLoader imports AngelCode .fnt descriptors with a single page.
type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string, assetType ResourceType, params interface{}) (*Resource, error) {
	if filepath.Ext(path) != ".fnt" {
		return nil, fmt.Errorf("unable to find bitmap font of supported type called '%s'", path)
	}
	atlas, err := fl.importFNTFile(path)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     atlas.Face,
		FullPath: path,
		Type:     ResourceTypeBitmapFont,
		DataSize: uint64(len(atlas.Image.Pixels)),
		Data:     atlas,
	}, nil
}

func (fl *BitmapFontLoader) Unload(res *Resource) error {
	if atlas, ok := res.Data.(*FontAtlas); ok {
		atlas.Glyphs = nil
		atlas.Kernings = nil
		atlas.Image = nil
	}
	res.Data = nil
	res.DataSize = 0
	return nil
}

func (fl *BitmapFontLoader) importFNTFile(fnt_file_name string) (*FontAtlas, error) {
	font, err := bmfont.Load(fnt_file_name)
	if err != nil {
		return nil, err
	}
	desc := font.Descriptor
	if len(desc.Pages) != 1 {
		return nil, fmt.Errorf("%s: %d pages, only single-page fonts are supported", fnt_file_name, len(desc.Pages))
	}

	var pageFile string
	for _, p := range desc.Pages {
		pageFile = p.File
	}
	sheet, err := decodeImageFile(filepath.Join(filepath.Dir(fnt_file_name), pageFile))
	if err != nil {
		return nil, fmt.Errorf("%s: page sheet: %w", fnt_file_name, err)
	}

	out := &FontAtlas{
		Face:       desc.Info.Face,
		Size:       int(desc.Info.Size),
		LineHeight: int(desc.Common.LineHeight),
		Baseline:   int(desc.Common.Base),
		Image:      ToRGBA(sheet, false, 0),
		Glyphs:     make(map[rune]FontGlyph, len(desc.Chars)),
		Kernings:   make(map[FontKerning]int, len(desc.Kerning)),
	}

	for _, g := range desc.Chars {
		out.Glyphs[rune(g.ID)] = FontGlyph{
			X:        int(g.X),
			Y:        int(g.Y),
			Width:    int(g.Width),
			Height:   int(g.Height),
			XOffset:  int(g.XOffset),
			YOffset:  int(g.YOffset),
			XAdvance: int(g.XAdvance),
		}
	}

	for p, k := range desc.Kerning {
		out.Kernings[FontKerning{Codepoint0: rune(p.First), Codepoint1: rune(p.Second)}] = int(k.Amount)
	}

	return out, nil
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
