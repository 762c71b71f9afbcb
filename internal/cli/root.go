package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hanzoai/dbosgo/internal/cli/commands"
	"github.com/hanzoai/dbosgo/internal/cli/framework"
	"github.com/hanzoai/dbosgo/internal/logger"
	"github.com/hanzoai/dbosgo/pkg/dbos"
)

var (
	cfgFile string
	verbose bool
)

// VersionInfo carries build metadata reported by `dbos --version`.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// NewRootCommand builds the root `dbos` Cobra command. register populates
// the Registry for the start/debug subcommands; it is supplied by the
// embedding application's main package, since this engine has no
// workflows of its own to register.
func NewRootCommand(versionInfo VersionInfo, register func(registry *dbos.Registry)) *cobra.Command {
	out := framework.NewOutputFormatter(false)

	root := &cobra.Command{
		Use:   "dbos",
		Short: "dbos - a durable, exactly-once workflow execution engine",
		Long:  `dbos runs durable workflows backed by PostgreSQL, recovering pending work after a crash and guaranteeing each step executes at most once.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.InitLogger(verbose)
			out.SetVerbose(verbose)
			if verbose {
				logger.Logger.Debug().Msg("Verbose logging enabled.")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	var showVersion bool
	root.Flags().BoolVar(&showVersion, "version", false, "Print version information")
	originalRun := root.Run
	root.Run = func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Printf("dbos\n")
			fmt.Printf("  Version:    %s\n", versionInfo.Version)
			fmt.Printf("  Commit:     %s\n", versionInfo.Commit)
			fmt.Printf("  Built:      %s\n", versionInfo.Date)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return
		}
		if originalRun != nil {
			originalRun(cmd, args)
			return
		}
		cmd.Help()
	}

	registry := framework.NewCommandRegistry()
	registry.Register(commands.NewInitCommand(out))
	registry.Register(commands.NewMigrateCommand(out))
	registry.Register(commands.NewRollbackCommand(out))
	registry.Register(commands.NewStartCommand(out, register))
	registry.Register(commands.NewDebugCommand(out, register))

	for _, cmd := range registry.BuildCobraCommands() {
		root.AddCommand(cmd)
	}

	return root
}

// GetConfigFilePath returns the value bound to the persistent --config flag.
func GetConfigFilePath() string {
	return cfgFile
}
