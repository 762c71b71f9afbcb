package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hanzoai/dbosgo/internal/cli/framework"
	"github.com/hanzoai/dbosgo/internal/config"
	"github.com/hanzoai/dbosgo/pkg/dbos/sysdb"
)

// InitCommand implements `dbos init`: it writes a starter dbos.yaml if one
// is not already present, then creates the SDB schema (§6 "init").
type InitCommand struct {
	framework.BaseCommand
	out *framework.OutputFormatter
}

// NewInitCommand constructs the `dbos init` command.
func NewInitCommand(out *framework.OutputFormatter) *InitCommand {
	return &InitCommand{out: out}
}

func (c *InitCommand) GetName() string        { return "init" }
func (c *InitCommand) GetDescription() string { return "Create a starter configuration and initialize the system database" }

const starterConfig = `database:
  hostname: localhost
  port: 5432
  username: postgres
  user_database: dbos_app
  udb_mode: postgres
executor:
  executor_id: local
runtimeConfig:
  port: 3000
  entrypoints: []
admin:
  enabled: true
  port: 3001
telemetry:
  log_level: info
`

func (c *InitCommand) BuildCobraCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: c.GetDescription(),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultConfigPath
			}

			if _, err := os.Stat(path); os.IsNotExist(err) {
				if writeErr := os.WriteFile(path, []byte(starterConfig), 0o644); writeErr != nil {
					return fmt.Errorf("init: write starter config: %w", writeErr)
				}
				c.out.PrintSuccess(fmt.Sprintf("Wrote starter configuration to %s", path))
			} else {
				c.out.PrintInfo(fmt.Sprintf("Configuration already exists at %s, leaving it unchanged", path))
			}

			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("init: load config: %w", err)
			}

			sdb, err := sysdb.NewPostgres(systemDatabaseDSN(cfg))
			if err != nil {
				return fmt.Errorf("init: connect to system database: %w", err)
			}
			defer sdb.Destroy(context.Background())

			if err := sdb.ApplySchema(cmd.Context()); err != nil {
				return fmt.Errorf("init: apply schema: %w", err)
			}

			c.out.PrintSuccess(fmt.Sprintf("Initialized system database %s", cfg.Database.SystemDatabase))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	return cmd
}
