package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanzoai/dbosgo/internal/cli/framework"
	"github.com/hanzoai/dbosgo/internal/config"
	"github.com/hanzoai/dbosgo/pkg/dbos/sysdb"
)

// MigrateCommand implements `dbos migrate`: brings the SDB schema up to
// date outside of a running Executor (§6 "migrate").
type MigrateCommand struct {
	framework.BaseCommand
	out *framework.OutputFormatter
}

func NewMigrateCommand(out *framework.OutputFormatter) *MigrateCommand {
	return &MigrateCommand{out: out}
}

func (c *MigrateCommand) GetName() string        { return "migrate" }
func (c *MigrateCommand) GetDescription() string { return "Apply outstanding system database schema changes" }

func (c *MigrateCommand) BuildCobraCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: c.GetDescription(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("migrate: load config: %w", err)
			}

			sdb, err := sysdb.NewPostgres(systemDatabaseDSN(cfg))
			if err != nil {
				return fmt.Errorf("migrate: connect to system database: %w", err)
			}
			defer sdb.Destroy(cmd.Context())

			if err := sdb.ApplySchema(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: apply schema: %w", err)
			}

			c.out.PrintSuccess(fmt.Sprintf("Migrated system database %s", cfg.Database.SystemDatabase))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	return cmd
}
