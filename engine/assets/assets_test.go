package assets

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/assets/loaders"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func spirv() []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b, loaders.SPIRVMagic)
	return b
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestAssets(t *testing.T, watch bool) (*AssetManager, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "shaders/default.vert.spv", spirv())
	writeFile(t, root, "textures/grass.png", pngBytes(t, 4, 2))
	writeFile(t, root, "materials/grass.amt", []byte("name = grass\nroughness = 0.2\n"))
	writeFile(t, root, "README.txt", []byte("not an asset"))

	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(root, watch))
	t.Cleanup(func() { _ = am.Close() })
	return am, root
}

func TestDetermineAssetType(t *testing.T) {
	tests := []struct {
		path string
		want loaders.ResourceType
	}{
		{"shaders/a.vert.spv", loaders.ResourceTypeShader},
		{"textures/a.PNG", loaders.ResourceTypeImage},
		{"textures/a.jpeg", loaders.ResourceTypeImage},
		{"textures/a.tiff", loaders.ResourceTypeImage},
		{"fonts/a.fnt", loaders.ResourceTypeBitmapFont},
		{"fonts/a.ttf", loaders.ResourceTypeSystemFont},
		{"materials/a.amt", loaders.ResourceTypeMaterial},
		{"notes.txt", loaders.ResourceTypeNone},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, determineAssetType(tt.path))
		})
	}
}

func TestInitializeIndexesKnownFiles(t *testing.T) {
	am, _ := newTestAssets(t, false)

	assert.Equal(t, 3, am.Len())
	info, ok := am.Info("textures/grass.png")
	require.True(t, ok)
	assert.Equal(t, loaders.ResourceTypeImage, info.Type)
	_, ok = am.Info("README.txt")
	assert.False(t, ok)
}

func TestLoadAsset(t *testing.T) {
	am, root := newTestAssets(t, false)

	res, err := am.LoadAsset("textures/grass.png", loaders.ResourceTypeImage, nil)
	require.NoError(t, err)
	img := res.Data.(*loaders.ImageData)
	assert.Equal(t, uint32(4), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	info, _ := am.Info("textures/grass.png")
	assert.False(t, info.LastLoaded.IsZero())
	require.NoError(t, am.UnloadAsset(res))

	res, err = am.LoadAsset("materials/grass.amt", loaders.ResourceTypeMaterial, nil)
	require.NoError(t, err)
	assert.Equal(t, "grass", res.Data.(*loaders.MaterialConfig).Name)

	words, err := am.Shaders().Load("default.vert.spv")
	require.NoError(t, err)
	assert.Equal(t, loaders.SPIRVMagic, words[0])

	_, err = am.LoadAsset("textures/grass.png", loaders.ResourceTypeShader, nil)
	assert.Error(t, err, "type mismatch")
	_, err = am.LoadAsset("textures/missing.png", loaders.ResourceTypeImage, nil)
	assert.Error(t, err)

	// files created after indexing are still found
	writeFile(t, root, "shaders/late.frag.spv", spirv())
	_, err = am.Shaders().Load("late.frag.spv")
	assert.NoError(t, err)
}

func TestWatchPublishesChanges(t *testing.T) {
	am, root := newTestAssets(t, true)

	writeFile(t, root, "shaders/color.frag.spv", spirv())

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-am.Changes():
			if ev.Path != "shaders/color.frag.spv" {
				continue
			}
			assert.Equal(t, loaders.ResourceTypeShader, ev.Type)
			_, ok := am.Info("shaders/color.frag.spv")
			assert.True(t, ok)
			return
		case <-timeout:
			t.Fatal("no change event for the new shader")
		}
	}
}

func TestCloseTwice(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(t.TempDir(), true))
	require.NoError(t, am.Close())
	assert.Error(t, am.Close())

	_, open := <-am.Changes()
	assert.False(t, open)
}
