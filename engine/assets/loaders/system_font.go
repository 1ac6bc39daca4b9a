package loaders

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const atlasWidth = 256

type SystemFontParams struct {
	// Size in points at 72 DPI, so points equal pixels.
	Size float64
}

// SystemFontLoader rasterizes .ttf, .otf and .ttc faces into an atlas of the
// printable ASCII range.
type SystemFontLoader struct{}

func (fl *SystemFontLoader) Load(path string, assetType ResourceType, params interface{}) (*Resource, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	size := 16.0
	if p, ok := params.(*SystemFontParams); ok && p != nil && p.Size > 0 {
		size = p.Size
	}

	var f *opentype.Font
	if strings.EqualFold(filepath.Ext(path), ".ttc") {
		coll, err := opentype.ParseCollection(fontBytes)
		if err != nil {
			return nil, err
		}
		if f, err = coll.Font(0); err != nil {
			return nil, err
		}
	} else if f, err = opentype.Parse(fontBytes); err != nil {
		return nil, err
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	defer face.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	atlas, err := RasterizeFace(name, int(size), face)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     name,
		FullPath: path,
		Type:     ResourceTypeSystemFont,
		DataSize: uint64(len(atlas.Image.Pixels)),
		Data:     atlas,
	}, nil
}

func (fl *SystemFontLoader) Unload(res *Resource) error {
	res.Data = nil
	res.DataSize = 0
	return nil
}

// DefaultFont is the built-in 7x13 face, always available.
func DefaultFont() *FontAtlas {
	atlas, err := RasterizeFace("basicfont-7x13", 13, basicfont.Face7x13)
	if err != nil {
		// the built-in face covers printable ASCII
		panic(err)
	}
	return atlas
}

// RasterizeFace draws the printable ASCII glyphs of face into a white
// RGBA atlas whose alpha is the coverage.
func RasterizeFace(name string, size int, face font.Face) (*FontAtlas, error) {
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()
	if lineHeight <= 0 {
		lineHeight = ascent + metrics.Descent.Ceil()
	}

	type cell struct {
		r      rune
		bounds fixed.Rectangle26_6
		adv    fixed.Int26_6
		x, y   int
		w, h   int
	}
	var cells []cell
	x, y, rowHeight := 1, 1, 0
	for r := rune(32); r < 127; r++ {
		bounds, adv, ok := face.GlyphBounds(r)
		if !ok {
			continue
		}
		w := (bounds.Max.X - bounds.Min.X).Ceil()
		h := (bounds.Max.Y - bounds.Min.Y).Ceil()
		if r == ' ' {
			// advance only; some faces report a full cell for it
			w, h = 0, 0
		}
		if w+2 > atlasWidth {
			return nil, fmt.Errorf("glyph %q is wider than the atlas", r)
		}
		if x+w+1 > atlasWidth {
			x = 1
			y += rowHeight + 1
			rowHeight = 0
		}
		cells = append(cells, cell{r: r, bounds: bounds, adv: adv, x: x, y: y, w: w, h: h})
		x += w + 1
		rowHeight = max(rowHeight, h)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("font %q has no printable glyphs", name)
	}

	height := 1
	for height < y+rowHeight+1 {
		height <<= 1
	}
	img := image.NewRGBA(image.Rect(0, 0, atlasWidth, height))

	atlas := &FontAtlas{
		Face:       name,
		Size:       size,
		LineHeight: lineHeight,
		Baseline:   ascent,
		Glyphs:     make(map[rune]FontGlyph, len(cells)),
		Kernings:   map[FontKerning]int{},
	}
	d := &font.Drawer{Dst: img, Src: image.White, Face: face}
	for _, c := range cells {
		d.Dot = fixed.P(c.x-c.bounds.Min.X.Floor(), c.y-c.bounds.Min.Y.Floor())
		d.DrawString(string(c.r))
		atlas.Glyphs[c.r] = FontGlyph{
			X:        c.x,
			Y:        c.y,
			Width:    c.w,
			Height:   c.h,
			XOffset:  c.bounds.Min.X.Floor(),
			YOffset:  ascent + c.bounds.Min.Y.Floor(),
			XAdvance: c.adv.Round(),
		}
	}
	atlas.Image = &ImageData{Width: uint32(atlasWidth), Height: uint32(height), Pixels: img.Pix}
	return atlas, nil
}
