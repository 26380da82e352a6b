package main

import (
	"os"

	"github.com/go-delve/gdblaunch/cmd/gdblaunch/cmds"
	"github.com/go-delve/gdblaunch/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.GdbLaunchVersion.Build = Build
	}
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
