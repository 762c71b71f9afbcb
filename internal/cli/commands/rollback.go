package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanzoai/dbosgo/internal/cli/framework"
	"github.com/hanzoai/dbosgo/internal/config"
	"github.com/hanzoai/dbosgo/pkg/dbos/sysdb"
)

// RollbackCommand implements `dbos rollback`: drops the entire dbos schema
// (§6 "rollback"). Destructive, so it always requires --yes.
type RollbackCommand struct {
	framework.BaseCommand
	out *framework.OutputFormatter
}

func NewRollbackCommand(out *framework.OutputFormatter) *RollbackCommand {
	return &RollbackCommand{out: out}
}

func (c *RollbackCommand) GetName() string        { return "rollback" }
func (c *RollbackCommand) GetDescription() string { return "Drop the system database schema" }

func (c *RollbackCommand) BuildCobraCommand() *cobra.Command {
	var configPath string
	var confirm bool

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: c.GetDescription(),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				c.out.PrintWarning("This drops the entire system database schema, destroying all workflow history. Re-run with --yes to confirm.")
				return fmt.Errorf("rollback: confirmation required")
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("rollback: load config: %w", err)
			}

			sdb, err := sysdb.NewPostgres(systemDatabaseDSN(cfg))
			if err != nil {
				return fmt.Errorf("rollback: connect to system database: %w", err)
			}
			defer sdb.Destroy(cmd.Context())

			if err := sdb.DropSchema(cmd.Context()); err != nil {
				return fmt.Errorf("rollback: drop schema: %w", err)
			}

			c.out.PrintSuccess(fmt.Sprintf("Dropped system database schema on %s", cfg.Database.SystemDatabase))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the destructive rollback")
	return cmd
}
