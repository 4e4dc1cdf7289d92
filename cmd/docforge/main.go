// Docforge - document ingestion and job orchestration service.
package main

import (
	"os"

	"github.com/docforge/docforge/internal/cli"
	"github.com/docforge/docforge/internal/version"
)

// Version information - the Makefile injects the release values via
// LDFLAGS; these are the fallbacks for plain go build.
var (
	Version   = "v1.0.0"
	BuildTime = "2026-08-24"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime
	cli.Version = Version
	cli.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
