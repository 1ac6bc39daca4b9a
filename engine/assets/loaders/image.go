package loaders

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ImageData is tightly packed RGBA8.
type ImageData struct {
	Width  uint32
	Height uint32
	Pixels []uint8
}

type ImageResourceParams struct {
	FlipY bool
	// MaxSize clamps the longest edge. Zero keeps the source size.
	MaxSize int
}

// ToRGBA converts any decoded image into packed RGBA8, optionally scaling it
// down to fit maxSize and flipping it vertically.
func ToRGBA(src image.Image, flipY bool, maxSize int) *ImageData {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			h = max(1, h*maxSize/w)
			w = maxSize
		} else {
			w = max(1, w*maxSize/h)
			h = maxSize
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}

	if flipY {
		stride := dst.Stride
		row := make([]uint8, stride)
		for y := 0; y < h/2; y++ {
			top := dst.Pix[y*stride : (y+1)*stride]
			bottom := dst.Pix[(h-1-y)*stride : (h-y)*stride]
			copy(row, top)
			copy(top, bottom)
			copy(bottom, row)
		}
	}

	return &ImageData{Width: uint32(w), Height: uint32(h), Pixels: dst.Pix}
}

// CheckerTexture is the fallback diffuse map used when no file is configured.
func CheckerTexture(size, cells int, a, b color.RGBA) *ImageData {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := max(1, size/cells)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := a
			if (x/cell+y/cell)%2 == 1 {
				c = b
			}
			img.SetRGBA(x, y, c)
		}
	}
	return &ImageData{Width: uint32(size), Height: uint32(size), Pixels: img.Pix}
}
