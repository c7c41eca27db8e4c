package main

import (
	"os"

	"podlauncher/cmd/podctl/cmd"
)

// Exit code 0 means the pod (or command) succeeded; anything else is a
// failure, so CI pipelines can gate on this binary directly.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
