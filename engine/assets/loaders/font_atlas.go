package loaders

type FontGlyph struct {
	X        int
	Y        int
	Width    int
	Height   int
	XOffset  int
	YOffset  int
	XAdvance int
}

type FontKerning struct {
	Codepoint0 rune
	Codepoint1 rune
}

// FontAtlas is a single RGBA page holding every glyph, plus the metrics to
// lay text out in pixels. YOffset is measured from the top of the line.
type FontAtlas struct {
	Face       string
	Size       int
	LineHeight int
	Baseline   int
	Image      *ImageData
	Glyphs     map[rune]FontGlyph
	Kernings   map[FontKerning]int
}

// Glyph returns the glyph for r, or '?' when the atlas has none.
func (f *FontAtlas) Glyph(r rune) (FontGlyph, bool) {
	if g, ok := f.Glyphs[r]; ok {
		return g, true
	}
	g, ok := f.Glyphs['?']
	return g, ok
}

func (f *FontAtlas) Kern(a, b rune) int {
	return f.Kernings[FontKerning{Codepoint0: a, Codepoint1: b}]
}

// Measure returns the pixel size of text laid out on a single line per '\n'.
func (f *FontAtlas) Measure(text string) (int, int) {
	width, lineWidth, lines := 0, 0, 1
	var prev rune = -1
	for _, r := range text {
		if r == '\n' {
			width = max(width, lineWidth)
			lineWidth = 0
			lines++
			prev = -1
			continue
		}
		g, ok := f.Glyph(r)
		if !ok {
			continue
		}
		if prev >= 0 {
			lineWidth += f.Kern(prev, r)
		}
		lineWidth += g.XAdvance
		prev = r
	}
	return max(width, lineWidth), lines * f.LineHeight
}
