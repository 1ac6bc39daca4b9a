//go:build mage

package main

import (
	"fmt"
	"strconv"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the demo in a window.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	return goTool("run", ".", "-backend", "vulkan")
}

// Runs the demo on the simulated device for the given number of frames.
func (Run) Headless(frames int) error {
	fmt.Printf("Run headless for %d frames...\n", frames)
	return goTool("run", ".", "-backend", "headless", "-frames", strconv.Itoa(frames))
}
