package testbed

import (
	"github.com/spaghettifunk/ringrender/engine"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
)

// CameraStart is where the camera begins, behind the grid looking along +Z.
var CameraStart = math.NewVec3(0, 2, -15)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	engine     *engine.Engine
	controller *CameraController
	scene      *BoxScene

	width  uint32
	height uint32
}

func NewTestGame(config *engine.ApplicationConfig) (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Initialize(e *engine.Engine) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.State.(*gameState)
	state.engine = e

	r := e.Renderer()
	r.Camera().SetPosition(CameraStart)

	sc := g.ApplicationConfig.Scene
	scene, err := BuildBoxScene(r, e.Assets(), SceneParams{
		Size:     sc.GridSize,
		Texture:  sc.Texture,
		Material: sc.Material,
	})
	if err != nil {
		return err
	}
	state.scene = scene
	state.controller = NewCameraController(r.Camera(), e.Input())

	e.Events().Register(core.EVENT_CODE_KEY_PRESSED, g, g.gameOnKey)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	state.controller.Update(deltaTime)
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	if state.engine != nil {
		state.engine.Events().Unregister(core.EVENT_CODE_KEY_PRESSED, g)
	}
	return nil
}

// Scene is the box grid, available after Initialize.
func (g *TestGame) Scene() *BoxScene {
	return g.State.(*gameState).scene
}

func (g *TestGame) gameOnKey(_ core.SystemEventCode, _, _ interface{}, data core.EventContext) bool {
	state := g.State.(*gameState)
	// R puts the camera back where it started.
	if core.KeyCode(data.Data.U16[0]) == core.KEY_R {
		cam := state.engine.Renderer().Camera()
		cam.SetEulerRotation(math.Vec3{})
		cam.SetPosition(CameraStart)
		core.LogDebug("camera reset")
		return true
	}
	return false
}
