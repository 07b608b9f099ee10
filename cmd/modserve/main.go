// modserve - modular plugin HTTP server
package main

import (
	"github.com/modserve/modserve/pkg/cli"
	_ "github.com/modserve/modserve/pkg/modules/builtin"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cli.Version = Version
	cli.Commit = Commit
	cli.BuildDate = BuildDate
	cli.Execute()
}
