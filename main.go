/*
ringrender draws a grid of boxes through a ring of frame resources,
letting the CPU record frames ahead of the GPU.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/ringrender/engine"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/testbed"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration")
	backend := flag.String("backend", "", "override renderer.backend (vulkan or headless)")
	frames := flag.Int("frames", -1, "override headless.frames")
	flag.Parse()

	config, err := engine.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("load config: %s", err)
	}
	if *backend != "" {
		config.Renderer.Backend = *backend
	}
	if *frames >= 0 {
		config.Headless.Frames = *frames
	}

	tb, err := testbed.NewTestGame(config)
	if err != nil {
		core.LogFatal(err.Error())
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}
	core.LogInfo("run %s", e.RunID())

	if err := e.Initialize(); err != nil {
		core.LogError("initialize: %s", err)
		_ = e.Shutdown()
		os.Exit(1)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		// capture sigterm and other system call here
		sig := <-sigCh
		core.LogInfo("received %s, stopping", sig)
		e.Stop()
	}()

	// The loop runs on the main thread, which the platform layer locked.
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogError("run: %s", runErr)
		os.Exit(1)
	}
}
