// Package main is the entry point for the cursormirrord streaming daemon.
package main

import (
	"os"

	"github.com/cursormirror/cursormirrord/cmd/cursormirrord/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
