//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

const (
	shaderDir = "assets/shaders"
	// shaderInclude is pulled into every stage with #include.
	shaderInclude = "common.glsl"
)

type Build mg.Namespace

// Compiles every GLSL stage under assets/shaders to SPIR-V with glslc.
// Stages whose .spv is newer than the source are skipped.
func (Build) Shaders() error {
	var sources []string
	for _, pattern := range []string{"*.vert", "*.frag"} {
		matches, err := filepath.Glob(filepath.Join(shaderDir, pattern))
		if err != nil {
			return err
		}
		sources = append(sources, matches...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no shader sources in %s", shaderDir)
	}
	include := filepath.Join(shaderDir, shaderInclude)
	for _, src := range sources {
		dst := src + ".spv"
		stale, err := target.Path(dst, src, include)
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		// glslc resolves #include relative to the source file
		if err := tool(true, "glslc", src, "-o", dst); err != nil {
			return err
		}
	}
	return nil
}

// Builds the ringrender binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	out := filepath.Join("bin", "ringrender")
	return goTool("build", "-o", out, ".")
}

// Runs go mod tidy.
func (Build) Tidy() error {
	if err := tool(false, mg.GoCmd(), "mod", "tidy"); err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	return nil
}
