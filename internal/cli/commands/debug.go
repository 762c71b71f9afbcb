package commands

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/hanzoai/dbosgo/internal/cli/framework"
	"github.com/hanzoai/dbosgo/internal/config"
	"github.com/hanzoai/dbosgo/pkg/dbos"
	"github.com/hanzoai/dbosgo/pkg/dbos/sysdb"
	"github.com/hanzoai/dbosgo/pkg/dbos/udb"
)

// DebugCommand implements `dbos debug <workflow-uuid>`: re-executes a
// previously recorded workflow against its OperationOutputs stream (§4.5,
// §6 "debug"). It runs through Executor.ExecuteWorkflowUUID with the ordinary
// workflow Context, not DebugContext: recorded steps return their recorded
// outputs, steps with no recorded output execute, and no divergence is
// reported.
type DebugCommand struct {
	framework.BaseCommand
	out      *framework.OutputFormatter
	Register func(registry *dbos.Registry)
}

// NewDebugCommand constructs the `dbos debug` command. register populates
// the Registry so the recorded workflow's symbol can be looked up.
func NewDebugCommand(out *framework.OutputFormatter, register func(registry *dbos.Registry)) *DebugCommand {
	return &DebugCommand{out: out, Register: register}
}

func (c *DebugCommand) GetName() string        { return "debug" }
func (c *DebugCommand) GetDescription() string { return "Replay a recorded workflow against its OperationOutputs" }

func (c *DebugCommand) BuildCobraCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "debug <workflow-uuid>",
		Short: c.GetDescription(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowUUID := args[0]

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("debug: load config: %w", err)
			}

			sdb, err := sysdb.NewPostgres(systemDatabaseDSN(cfg))
			if err != nil {
				return fmt.Errorf("debug: connect to system database: %w", err)
			}
			defer sdb.Destroy(cmd.Context())
			if err := sdb.Init(cmd.Context()); err != nil {
				return fmt.Errorf("debug: initialize system database: %w", err)
			}

			var appDB *udb.UDB
			mode := cfg.Database.UDBMode
			if mode == "sqlite" {
				appDB, err = udb.Open(mode, "sqlite3", cfg.Database.UserDatabase)
			} else {
				appDB, err = udb.Open("postgres", "pgx", userDatabaseDSN(cfg))
			}
			if err != nil {
				return fmt.Errorf("debug: connect to application database: %w", err)
			}

			registry := dbos.NewRegistry()
			if c.Register != nil {
				c.Register(registry)
			}

			executor := dbos.NewExecutor(registry, sdb, appDB, dbos.ExecutorConfig{
				ExecutorID:         cfg.Executor.ExecutorID,
				ApplicationVersion: cfg.Executor.ApplicationVersion,
			})

			handle, err := executor.ExecuteWorkflowUUID(cmd.Context(), workflowUUID)
			if err != nil {
				return fmt.Errorf("debug: replay %s: %w", workflowUUID, err)
			}

			status, err := handle.GetResult(cmd.Context())
			if err != nil {
				return fmt.Errorf("debug: await result: %w", err)
			}

			c.out.PrintSuccess(fmt.Sprintf("Replayed %s -> %s", workflowUUID, status.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	return cmd
}
