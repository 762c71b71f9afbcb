// Command dbos is the CLI entrypoint for the workflow execution engine:
// init/migrate/rollback manage the system database schema, start runs the
// executor and admin surface, and debug replays one recorded workflow.
package main

import (
	"fmt"
	"os"

	"github.com/hanzoai/dbosgo/internal/cli"
	"github.com/hanzoai/dbosgo/pkg/dbos"
)

// version/commit/date are overridden at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := cli.NewRootCommand(cli.VersionInfo{Version: version, Commit: commit, Date: date}, registerWorkflows)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// registerWorkflows is the seam where an embedding application would
// register its workflows, transactions, and communicators before the
// executor starts. This binary ships with none of its own.
func registerWorkflows(registry *dbos.Registry) {
	_ = registry
}
