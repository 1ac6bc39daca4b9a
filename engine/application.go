package engine

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

type ApplicationConfig struct {
	// The application name used in windowing, if applicable.
	Name string `toml:"name"`
	// Window starting position x axis, if applicable.
	StartPosX int `toml:"start_pos_x"`
	// Window starting position y axis, if applicable.
	StartPosY int `toml:"start_pos_y"`
	// Window starting width, if applicable.
	StartWidth uint32 `toml:"start_width"`
	// Window starting height, if applicable.
	StartHeight uint32 `toml:"start_height"`
	LogLevel    string `toml:"log_level"`

	Renderer RendererConfig `toml:"renderer"`
	Assets   AssetsConfig   `toml:"assets"`
	Scene    SceneConfig    `toml:"scene"`
	Overlay  OverlayConfig  `toml:"overlay"`
	Headless HeadlessConfig `toml:"headless"`
}

type RendererConfig struct {
	Backend          string     `toml:"backend"`
	FrameResources   int        `toml:"frame_resources"`
	SwapChainBuffers int        `toml:"swap_chain_buffers"`
	MaxRenderItems   int        `toml:"max_render_items"`
	MaxMaterials     int        `toml:"max_materials"`
	MaxTextures      int        `toml:"max_textures"`
	Binding          string     `toml:"binding"`
	Validation       bool       `toml:"validation"`
	VSync            bool       `toml:"vsync"`
	ClearColor       [4]float32 `toml:"clear_color"`
}

type AssetsConfig struct {
	Dir string `toml:"dir"`
	// Watch rebuilds the pipeline when a shader file changes.
	Watch bool `toml:"watch"`
}

type SceneConfig struct {
	GridSize int `toml:"grid_size"`
	// Texture is the diffuse image relative to the assets directory. A
	// procedural checker is used when empty.
	Texture string `toml:"texture"`
	// Material is an .amt file overriding the grass material. Its
	// diffuse_map_name is used when Texture is empty.
	Material string `toml:"material"`
}

type OverlayConfig struct {
	Enabled bool `toml:"enabled"`
	// Font is a .fnt, .ttf or .otf file relative to the assets directory.
	Font     string  `toml:"font"`
	FontSize float64 `toml:"font_size"`
}

type HeadlessConfig struct {
	// Frames rendered before the loop exits. 0 runs until interrupted.
	Frames     int      `toml:"frames"`
	Width      uint32   `toml:"width"`
	Height     uint32   `toml:"height"`
	GPULatency Duration `toml:"gpu_latency"`
}

// Duration reads Go duration strings such as "2ms" from TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func DefaultApplicationConfig() *ApplicationConfig {
	rc := renderer.DefaultConfig()
	return &ApplicationConfig{
		Name:        "ringrender",
		StartPosX:   100,
		StartPosY:   100,
		StartWidth:  rc.Width,
		StartHeight: rc.Height,
		LogLevel:    "info",
		Renderer: RendererConfig{
			Backend:          renderer.Vulkan.String(),
			FrameResources:   rc.FrameResources,
			SwapChainBuffers: rc.SwapChainBuffers,
			MaxRenderItems:   rc.MaxRenderItems,
			MaxMaterials:     rc.MaxMaterials,
			MaxTextures:      rc.MaxTextures,
			Binding:          string(rc.Binding),
			VSync:            rc.VSync,
			ClearColor:       [4]float32(rc.ClearColor),
		},
		Assets: AssetsConfig{
			Dir:   "assets",
			Watch: true,
		},
		Scene: SceneConfig{
			GridSize: 6,
		},
		Overlay: OverlayConfig{
			Enabled:  true,
			FontSize: 14,
		},
		Headless: HeadlessConfig{
			Width:  rc.Width,
			Height: rc.Height,
		},
	}
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults; a malformed or invalid one is an error.
func LoadConfig(path string) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("config %s not found, using defaults", path)
		return cfg, cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	if err := ParseConfig(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes TOML into cfg and validates the result. Keys the
// document leaves out keep their current values.
func ParseConfig(data []byte, cfg *ApplicationConfig) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return cfg.Validate()
}

func (c *ApplicationConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name is empty"))
	}
	if _, err := renderer.ParseBackendType(c.Renderer.Backend); err != nil {
		errs = append(errs, err)
	}
	if _, err := renderer.NewBindingLayout(renderer.BindingVariant(c.Renderer.Binding)); err != nil {
		errs = append(errs, err)
	}
	if c.Renderer.FrameResources < 2 {
		errs = append(errs, fmt.Errorf("renderer.frame_resources must be at least 2, got %d", c.Renderer.FrameResources))
	}
	if c.Renderer.SwapChainBuffers < 2 {
		errs = append(errs, fmt.Errorf("renderer.swap_chain_buffers must be at least 2, got %d", c.Renderer.SwapChainBuffers))
	}
	if c.Renderer.MaxRenderItems < 1 || c.Renderer.MaxMaterials < 1 || c.Renderer.MaxTextures < 1 {
		errs = append(errs, errors.New("renderer capacities must be positive"))
	}
	if c.Scene.GridSize < 1 {
		errs = append(errs, fmt.Errorf("scene.grid_size must be positive, got %d", c.Scene.GridSize))
	} else if c.Scene.GridSize*c.Scene.GridSize > c.Renderer.MaxRenderItems {
		errs = append(errs, fmt.Errorf("scene.grid_size %d needs %d render items, renderer.max_render_items is %d",
			c.Scene.GridSize, c.Scene.GridSize*c.Scene.GridSize, c.Renderer.MaxRenderItems))
	}
	if c.StartWidth == 0 || c.StartHeight == 0 {
		errs = append(errs, errors.New("start_width and start_height must be nonzero"))
	}
	if c.Headless.Frames < 0 {
		errs = append(errs, errors.New("headless.frames must not be negative"))
	}
	if c.Headless.GPULatency < 0 {
		errs = append(errs, errors.New("headless.gpu_latency must not be negative"))
	}
	return errors.Join(errs...)
}

// Backend is the validated renderer backend.
func (c *ApplicationConfig) Backend() renderer.BackendType {
	b, _ := renderer.ParseBackendType(c.Renderer.Backend)
	return b
}

// WindowSize is the initial client area for the configured backend.
func (c *ApplicationConfig) WindowSize() (uint32, uint32) {
	if c.Backend() == renderer.Headless && c.Headless.Width > 0 && c.Headless.Height > 0 {
		return c.Headless.Width, c.Headless.Height
	}
	return c.StartWidth, c.StartHeight
}

// RenderCoreConfig converts the [renderer] section for renderer.New.
func (c *ApplicationConfig) RenderCoreConfig() renderer.Config {
	width, height := c.WindowSize()
	return renderer.Config{
		FrameResources:   c.Renderer.FrameResources,
		SwapChainBuffers: c.Renderer.SwapChainBuffers,
		MaxRenderItems:   c.Renderer.MaxRenderItems,
		MaxMaterials:     c.Renderer.MaxMaterials,
		MaxTextures:      c.Renderer.MaxTextures,
		Binding:          renderer.BindingVariant(c.Renderer.Binding),
		VSync:            c.Renderer.VSync,
		ClearColor:       gpu.Color(c.Renderer.ClearColor),
		Width:            width,
		Height:           height,
	}
}
