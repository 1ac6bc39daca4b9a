package engine

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/spaghettifunk/ringrender/engine/assets"
	"github.com/spaghettifunk/ringrender/engine/assets/loaders"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/platform"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/components"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
	"github.com/spaghettifunk/ringrender/engine/renderer/overlay"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	default:
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
}

// pausedSleep is how long a paused loop yields between message pumps.
const pausedSleep = 100 * time.Millisecond

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *ApplicationConfig
	runID        uuid.UUID
	logger       *log.Logger

	events       *core.EventBus
	input        *core.InputState
	window       platform.Window
	device       gpu.Device
	assetManager *assets.AssetManager
	renderer     *renderer.Renderer
	core         RenderCore
	overlay      *overlay.Overlay
	clock        *core.Clock
	stats        *core.FrameStats

	isRunning     bool
	stopRequested atomic.Bool
	inactive      bool
	minimized     bool
	pendingResize bool
	width         uint32
	height        uint32
	frameCount    uint64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("game has no application config")
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, err
	}
	if err := core.SetLogLevel(g.ApplicationConfig.LogLevel); err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	bus := core.NewEventBus()
	width, height := g.ApplicationConfig.WindowSize()
	runID := uuid.New()
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       g.ApplicationConfig,
		runID:        runID,
		logger:       core.Logger().With("component", "engine", "run", runID.String()[:8]),
		events:       bus,
		input:        core.NewInputState(bus),
		assetManager: am,
		clock:        core.NewClock(),
		stats:        core.NewFrameStats(),
		width:        width,
		height:       height,
	}, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("initialize in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	cfg := e.config

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_ACTIVATED, e, e.onActivated)

	if err := e.assetManager.Initialize(cfg.Assets.Dir, cfg.Assets.Watch); err != nil {
		return fmt.Errorf("assets: %w", err)
	}

	window, err := createWindow(cfg, e.events, e.input)
	if err != nil {
		return err
	}
	e.window = window

	if e.device, err = createDevice(cfg, window); err != nil {
		return err
	}

	camera := components.NewCamera()
	if e.renderer, err = renderer.New(e.device, cfg.RenderCoreConfig(), e.assetManager.Shaders(), camera); err != nil {
		return err
	}
	e.core = e.renderer

	font, err := e.loadOverlayFont()
	if err != nil {
		return err
	}
	e.overlay = overlay.New(font)
	e.overlay.SetEnabled(cfg.Overlay.Enabled)
	e.renderer.SetOverlay(e.overlay)

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e); err != nil {
			return err
		}
	}
	if err := e.renderer.Build(); err != nil {
		return err
	}

	e.width, e.height = e.window.FramebufferSize()
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}

	e.isRunning = true
	e.currentStage = EngineStageInitialized
	e.logger.Info("engine initialized", "backend", cfg.Backend(), "device", e.device.Name(), "size", fmt.Sprintf("%dx%d", e.width, e.height))
	return nil
}

func (e *Engine) loadOverlayFont() (*loaders.FontAtlas, error) {
	name := e.config.Overlay.Font
	if name == "" {
		return nil, nil
	}
	resType := loaders.ResourceTypeSystemFont
	var params interface{} = &loaders.SystemFontParams{Size: e.config.Overlay.FontSize}
	if strings.EqualFold(filepath.Ext(name), ".fnt") {
		resType = loaders.ResourceTypeBitmapFont
		params = nil
	}
	res, err := e.assetManager.LoadAsset(name, resType, params)
	if err != nil {
		return nil, fmt.Errorf("overlay font: %w", err)
	}
	return res.Data.(*loaders.FontAtlas), nil
}

// Run drives the frame loop until the window closes, Stop is called or the
// render core fails fatally. The fatal error is returned.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("run in stage %s", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()

	for e.isRunning && !e.stopRequested.Load() {
		if !e.window.PumpMessages() {
			e.isRunning = false
			break
		}
		if err := e.processAssetChanges(); err != nil {
			return e.fail("shader reload", err)
		}

		if e.pendingResize && !e.minimized {
			e.pendingResize = false
			if err := e.core.OnResize(e.width, e.height); err != nil {
				if core.IsFatal(err) {
					return e.fail("resize", err)
				}
				e.logger.Error("resize failed", "err", err)
			}
			if e.gameInstance.FnOnResize != nil {
				if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
					return e.fail("game resize", err)
				}
			}
		}

		if e.paused() {
			time.Sleep(pausedSleep)
			continue
		}

		if err := e.frame(); err != nil {
			if core.IsFatal(err) {
				return e.fail("frame", err)
			}
			e.logger.Error("frame failed", "frame", e.frameCount, "err", err)
		}
	}
	e.logger.Info("frame loop ended", "frames", e.frameCount)
	return nil
}

func (e *Engine) frame() error {
	e.clock.Update()
	total, delta := e.clock.Elapsed(), e.clock.Delta()

	if e.stats.Tick(total, delta) {
		e.window.SetTitle(e.stats.Title(e.config.Name))
	}

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return err
		}
	}
	e.updateOverlay()

	if err := e.core.OnUpdate(total, delta); err != nil {
		return err
	}
	if err := e.core.OnDraw(); err != nil {
		return err
	}

	// Input state is copied once the frame consumed it.
	e.input.Update()
	e.frameCount++
	return nil
}

func (e *Engine) updateOverlay() {
	if e.overlay == nil || !e.overlay.Enabled() {
		return
	}
	pos := e.renderer.Camera().GetPosition()
	gate := e.renderer.Gate()
	e.overlay.SetLines(
		fmt.Sprintf("%s [%s]", e.config.Name, e.device.Name()),
		fmt.Sprintf("fps: %.0f  mspf: %.3f", e.stats.FPS(), e.stats.MSPerFrame()),
		fmt.Sprintf("fence: %d/%d  ring: %d", gate.Completed(), gate.Current(), e.renderer.Frames().Depth()),
		fmt.Sprintf("camera: %.2f %.2f %.2f", pos.X, pos.Y, pos.Z),
	)
}

// processAssetChanges drains the watcher and rebuilds the pipeline once
// when any shader changed.
func (e *Engine) processAssetChanges() error {
	reload := false
	for {
		select {
		case ev, ok := <-e.assetManager.Changes():
			if !ok {
				return e.reloadShaders(reload)
			}
			if ev.Type == loaders.ResourceTypeShader {
				e.logger.Info("shader changed", "path", ev.Path, "op", ev.Op)
				reload = true
			}
		default:
			return e.reloadShaders(reload)
		}
	}
}

func (e *Engine) reloadShaders(reload bool) error {
	if !reload {
		return nil
	}
	e.events.Fire(core.EVENT_CODE_SHADERS_CHANGED, e, core.EventContext{})
	return e.renderer.ReloadShaders()
}

func (e *Engine) fail(what string, err error) error {
	e.isRunning = false
	core.LogError("%s failed, shutting down: %s", what, err)
	return fmt.Errorf("%s: %w", what, err)
}

func (e *Engine) paused() bool {
	return e.inactive || e.minimized
}

func (e *Engine) setPaused(inactive, minimized bool) {
	was := e.paused()
	e.inactive, e.minimized = inactive, minimized
	switch now := e.paused(); {
	case now && !was:
		e.clock.Stop()
		e.logger.Info("paused", "inactive", inactive, "minimized", minimized)
	case !now && was:
		e.clock.Resume()
		e.logger.Info("resumed")
	}
}

// Stop asks the loop to return after the current iteration. Safe to call
// from any goroutine.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShuttingDown || e.currentStage == EngineStageUninitialized {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false

	var err error
	if e.gameInstance.FnShutdown != nil {
		if gerr := e.gameInstance.FnShutdown(); gerr != nil {
			e.logger.Error("game shutdown", "err", gerr)
		}
	}
	if e.renderer != nil {
		err = e.renderer.Shutdown()
	}
	if e.device != nil {
		e.device.Release()
	}
	if aerr := e.assetManager.Close(); aerr != nil {
		e.logger.Warn("asset manager close", "err", aerr)
	}
	if e.window != nil {
		if werr := e.window.Close(); werr != nil && err == nil {
			err = werr
		}
	}
	e.events.Shutdown()
	e.logger.Info("engine shut down", "frames", e.frameCount)
	return err
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) RunID() uuid.UUID {
	return e.runID
}

func (e *Engine) Config() *ApplicationConfig {
	return e.config
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Input() *core.InputState {
	return e.input
}

func (e *Engine) Window() platform.Window {
	return e.window
}

func (e *Engine) Device() gpu.Device {
	return e.device
}

func (e *Engine) Assets() *assets.AssetManager {
	return e.assetManager
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Overlay() *overlay.Overlay {
	return e.overlay
}

// FrameCount is the number of frames drawn by Run.
func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

// GetFramebufferSize returns the width and height (in this order) of the
// window client area as last reported.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Paused() bool {
	return e.paused()
}

func (e *Engine) onEvent(code core.SystemEventCode, _, _ interface{}, _ core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		e.logger.Info("EVENT_CODE_APPLICATION_QUIT received, shutting down")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender, _ interface{}, data core.EventContext) bool {
	switch core.KeyCode(data.Data.U16[0]) {
	case core.KEY_ESCAPE:
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		return true
	case core.KEY_F1:
		if e.overlay != nil {
			e.overlay.Toggle()
			e.logger.Debug("overlay toggled", "enabled", e.overlay.Enabled())
		}
		return true
	}
	return false
}

func (e *Engine) onResized(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == 0 || height == 0 {
		if !e.minimized {
			e.logger.Info("window minimized, suspending application")
		}
		e.setPaused(e.inactive, true)
		return false
	}
	if e.minimized {
		e.logger.Info("window restored, resuming application")
	}
	e.setPaused(e.inactive, false)
	if width != e.width || height != e.height {
		e.logger.Debug("window resize", "width", width, "height", height)
		e.width, e.height = width, height
		e.pendingResize = true
	}
	return false
}

func (e *Engine) onActivated(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
	e.setPaused(data.Data.U32[0] == 0, e.minimized)
	return false
}
