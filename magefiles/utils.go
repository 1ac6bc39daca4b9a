//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// tool runs an external command. Output is streamed when stream is set or
// mage runs with -v, otherwise it is only printed if the command fails.
func tool(stream bool, cmd string, args ...string) error {
	fmt.Printf("Executing: %s %s\n", cmd, strings.Join(args, " "))
	if stream || mg.Verbose() {
		return sh.RunV(cmd, args...)
	}
	out, err := sh.Output(cmd, args...)
	if err != nil {
		fmt.Println("... failed command output:")
		fmt.Println(out)
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// goTool runs the go command with output streamed.
func goTool(args ...string) error {
	return tool(true, mg.GoCmd(), args...)
}
