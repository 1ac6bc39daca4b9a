package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/renderer"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultApplicationConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, renderer.Vulkan, cfg.Backend())
	assert.Equal(t, 3, cfg.Renderer.FrameResources)
	assert.Equal(t, 6, cfg.Scene.GridSize)

	rc := cfg.RenderCoreConfig()
	assert.Equal(t, renderer.LightSteelBlue, rc.ClearColor)
	assert.Equal(t, renderer.BindingTextured, rc.Binding)
	assert.Equal(t, uint32(1280), rc.Width)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultApplicationConfig(), cfg)
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	doc := `
name = "boxes"
log_level = "debug"

[renderer]
backend = "headless"
frame_resources = 2
binding = "colored"
clear_color = [0.0, 0.0, 0.0, 1.0]

[headless]
frames = 120
width = 640
height = 360
gpu_latency = "2ms"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "boxes", cfg.Name)
	assert.Equal(t, renderer.Headless, cfg.Backend())
	assert.Equal(t, 2, cfg.Renderer.FrameResources)
	// untouched keys keep their defaults
	assert.Equal(t, renderer.DefaultSwapChainBufferCount, cfg.Renderer.SwapChainBuffers)
	assert.Equal(t, 6, cfg.Scene.GridSize)
	assert.Equal(t, 120, cfg.Headless.Frames)
	assert.Equal(t, 2*time.Millisecond, time.Duration(cfg.Headless.GPULatency))

	rc := cfg.RenderCoreConfig()
	assert.Equal(t, renderer.BindingColored, rc.Binding)
	assert.Equal(t, uint32(640), rc.Width)
	assert.Equal(t, uint32(360), rc.Height)
	assert.Equal(t, float32(1), rc.ClearColor[3])
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", "name = \n"},
		{"unknown key", "colour = 1\n"},
		{"bad backend", "[renderer]\nbackend = \"metal\"\n"},
		{"bad binding", "[renderer]\nbinding = \"bindless\"\n"},
		{"one frame resource", "[renderer]\nframe_resources = 1\n"},
		{"one swap buffer", "[renderer]\nswap_chain_buffers = 1\n"},
		{"grid too large", "[scene]\ngrid_size = 20\n"},
		{"bad latency", "[headless]\ngpu_latency = \"soon\"\n"},
		{"empty name", "name = \"  \"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultApplicationConfig()
			assert.Error(t, ParseConfig([]byte(tt.doc), cfg))
		})
	}
}

func TestParseConfigReportsPosition(t *testing.T) {
	err := ParseConfig([]byte("name = \"ok\"\nstart_width = = 3\n"), DefaultApplicationConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1.5s")))
	assert.Equal(t, 1500*time.Millisecond, time.Duration(d))
	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.5s", string(out))
}
