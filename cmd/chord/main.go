// chord - rate-limit-aware client for REST APIs.
package main

import (
	"os"

	"github.com/chordhq/chord/internal/cli"
)

// Version information - overridden via LDFLAGS on release builds.
var (
	Version   = "v0.1.0"
	BuildTime = "unknown"
)

func main() {
	cli.Version = Version
	cli.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
