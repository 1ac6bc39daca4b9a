package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/ringrender/engine/assets/loaders"
	"github.com/spaghettifunk/ringrender/engine/core"
)

const changeBacklog = 64

type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}

// AssetEvent reports a change to an indexed file. Path is relative to the
// assets directory and uses forward slashes.
type AssetEvent struct {
	Path string
	Type loaders.ResourceType
	Op   fsnotify.Op
}

type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]Loader
	logger  *log.Logger

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	watching bool
	isClosed bool
	changes  chan AssetEvent
	errors   chan error
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[loaders.ResourceType]Loader),
		logger:   core.Logger().With("component", "assets"),
		fsnotify: fsWatch,
		changes:  make(chan AssetEvent, changeBacklog),
		errors:   make(chan error, changeBacklog),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	// Register loaders
	am.registerLoader(loaders.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(loaders.ResourceTypeImage, &loaders.TextureLoader{})
	am.registerLoader(loaders.ResourceTypeBitmapFont, &loaders.BitmapFontLoader{})
	am.registerLoader(loaders.ResourceTypeSystemFont, &loaders.SystemFontLoader{})
	am.registerLoader(loaders.ResourceTypeMaterial, &loaders.MaterialLoader{})

	return am, nil
}

// Initialize indexes every known file under assetsDir. With watch set the
// directory tree is watched and changes are published on Changes.
func (am *AssetManager) Initialize(assetsDir string, watch bool) error {
	root, err := filepath.Abs(assetsDir)
	if err != nil {
		return err
	}
	am.root = root

	if err := am.watchRecursive(root, watch); err != nil {
		return err
	}
	if watch {
		am.watching = true
		go am.start()
	}
	am.logger.Info("assets indexed", "dir", root, "count", am.Len(), "watch", watch)
	return nil
}

// Changes delivers file change events while watching. Events are dropped
// when nobody drains the channel.
func (am *AssetManager) Changes() <-chan AssetEvent {
	return am.changes
}

// Errors delivers watcher errors.
func (am *AssetManager) Errors() <-chan error {
	return am.errors
}

func (am *AssetManager) Root() string {
	return am.root
}

func (am *AssetManager) Len() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// Info returns the index entry for a relative path.
func (am *AssetManager) Info(name string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.ToSlash(name)]
	return info, ok
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType loaders.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset loads a file given by its path relative to the assets directory.
// Files created after the last index pass are picked up from disk.
func (am *AssetManager) LoadAsset(name string, resourceType loaders.ResourceType, params interface{}) (*loaders.Resource, error) {
	key := filepath.ToSlash(name)

	am.mutex.RLock()
	asset, exists := am.assets[key]
	am.mutex.RUnlock()
	if !exists {
		if _, err := os.Stat(am.fullPath(key)); err != nil {
			return nil, fmt.Errorf("asset not found: %s", key)
		}
		asset = AssetInfo{Path: key, Type: determineAssetType(key)}
	}
	if asset.Type != resourceType {
		return nil, fmt.Errorf("asset %s is a %s, not a %s", key, asset.Type, resourceType)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}
	res, err := loader.Load(am.fullPath(key), resourceType, params)
	if err != nil {
		return nil, err
	}

	// Update the loaded time
	asset.LastLoaded = time.Now()
	am.mutex.Lock()
	am.assets[key] = asset
	am.mutex.Unlock()
	return res, nil
}

func (am *AssetManager) UnloadAsset(res *loaders.Resource) error {
	if res == nil {
		return nil
	}
	loader, ok := am.loaders[res.Type]
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %s", res.Type)
	}
	return loader.Unload(res)
}

// Shaders returns a shader source reading from the shaders/ directory.
func (am *AssetManager) Shaders() *ShaderDir {
	return &ShaderDir{am: am}
}

// ShaderDir resolves a bare shader file name such as "default.vert.spv".
type ShaderDir struct {
	am *AssetManager
}

func (s *ShaderDir) Load(name string) ([]uint32, error) {
	res, err := s.am.LoadAsset("shaders/"+name, loaders.ResourceTypeShader, nil)
	if err != nil {
		return nil, err
	}
	return res.Data.([]uint32), nil
}

// Close stops the watcher goroutine and closes the change channels.
func (am *AssetManager) Close() error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	am.isClosed = true
	if !am.watching {
		close(am.changes)
		close(am.errors)
		return am.fsnotify.Close()
	}
	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) fullPath(key string) string {
	return filepath.Join(am.root, filepath.FromSlash(key))
}

func (am *AssetManager) relative(path string) (string, bool) {
	rel, err := filepath.Rel(am.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, true); err != nil {
						am.logger.Warn("watch new directory", "dir", e.Name, "err", err)
					}
				}
				continue
			}
			rel, ok := am.relative(e.Name)
			if !ok {
				continue
			}
			assetType := determineAssetType(rel)
			if assetType == loaders.ResourceTypeNone {
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(rel)
			}
			// The path may have been a watched directory.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(rel)
				_ = am.fsnotify.Remove(e.Name)
			}
			am.publish(AssetEvent{Path: rel, Type: assetType, Op: e.Op})

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			am.logger.Error("watcher", "err", e)
			select {
			case am.errors <- e:
			default:
			}

		case <-am.done:
			am.fsnotify.Close()
			close(am.changes)
			close(am.errors)
			return
		}
	}
}

func (am *AssetManager) publish(ev AssetEvent) {
	select {
	case am.changes <- ev:
	default:
		am.logger.Debug("change dropped", "path", ev.Path)
	}
}

// watchRecursive indexes every file under path and, with watch set, adds
// all directories to the watch list. Files added to a directory before its
// watch is in place are caught by the walk.
func (am *AssetManager) watchRecursive(path string, watch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if watch {
				return am.fsnotify.Add(walkPath)
			}
			return nil
		}
		if rel, ok := am.relative(walkPath); ok {
			am.handleFileEvent(rel)
		}
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == loaders.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path: path,
		Type: assetType,
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func determineAssetType(path string) loaders.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return loaders.ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff":
		return loaders.ResourceTypeImage
	case ".fnt":
		return loaders.ResourceTypeBitmapFont
	case ".ttf", ".otf", ".ttc":
		return loaders.ResourceTypeSystemFont
	case ".amt":
		return loaders.ResourceTypeMaterial
	default:
		return loaders.ResourceTypeNone
	}
}
