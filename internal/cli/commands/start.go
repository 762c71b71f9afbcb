package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/hanzoai/dbosgo/internal/admin"
	"github.com/hanzoai/dbosgo/internal/cli/framework"
	"github.com/hanzoai/dbosgo/internal/config"
	"github.com/hanzoai/dbosgo/internal/entrypoints"
	"github.com/hanzoai/dbosgo/internal/logger"
	"github.com/hanzoai/dbosgo/pkg/dbos"
	"github.com/hanzoai/dbosgo/pkg/dbos/sysdb"
	"github.com/hanzoai/dbosgo/pkg/dbos/udb"
)

// StartCommand implements `dbos start`: connects both databases, brings up
// the Executor and registry, starts the admin surface and the dev-mode
// entrypoint watcher, then blocks until a termination signal arrives (§6
// "start").
type StartCommand struct {
	framework.BaseCommand
	out *framework.OutputFormatter

	// Register is invoked once before the Executor is constructed (and again
	// on every entrypoint-file change) so embedding applications can wire
	// their workflows/transactions/communicators into the Registry before
	// Executor.Init starts accepting work.
	Register func(registry *dbos.Registry)
}

// NewStartCommand constructs the `dbos start` command. register is called
// to populate the Registry; it may be nil for a pure-CLI smoke test.
func NewStartCommand(out *framework.OutputFormatter, register func(registry *dbos.Registry)) *StartCommand {
	return &StartCommand{out: out, Register: register}
}

func (c *StartCommand) GetName() string        { return "start" }
func (c *StartCommand) GetDescription() string { return "Start the executor and admin surface" }

func (c *StartCommand) BuildCobraCommand() *cobra.Command {
	var configPath string
	var executorIDFlag string

	cmd := &cobra.Command{
		Use:   "start",
		Short: c.GetDescription(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("start: load config: %w", err)
			}
			if executorIDFlag != "" {
				cfg.Executor.ExecutorID = executorIDFlag
			}

			return c.run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file")
	cmd.Flags().StringVar(&executorIDFlag, "executor-id", "", "Override the configured executor identity")
	return cmd
}

func (c *StartCommand) run(ctx context.Context, cfg *config.Config) error {
	sdb, err := sysdb.NewPostgres(systemDatabaseDSN(cfg))
	if err != nil {
		return fmt.Errorf("start: connect to system database: %w", err)
	}

	appDB, err := c.openUserDatabase(cfg)
	if err != nil {
		sdb.Destroy(ctx)
		return err
	}

	registry := dbos.NewRegistry()
	if c.Register != nil {
		c.Register(registry)
	}

	executor := dbos.NewExecutor(registry, sdb, appDB, dbos.ExecutorConfig{
		ExecutorID:          cfg.Executor.ExecutorID,
		ApplicationVersion:  cfg.Executor.ApplicationVersion,
		MaxRecoveryAttempts: cfg.Executor.MaxRecoveryAttempts,
		RecoveryLockTTL:     cfg.Executor.RecoveryLockTTL,
		RecoveryInterval:    cfg.Executor.RecoveryInterval,
	})

	if err := executor.Init(ctx); err != nil {
		return fmt.Errorf("start: initialize executor: %w", err)
	}
	c.out.PrintSuccess(fmt.Sprintf("Executor %q started", cfg.Executor.ExecutorID))

	var watcher *entrypoints.Watcher
	if len(cfg.RuntimeConfig.Entrypoints) > 0 && c.Register != nil {
		watcher, err = entrypoints.Start(ctx, cfg.RuntimeConfig.Entrypoints, func() {
			c.Register(registry)
		})
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("dbos: entrypoint watcher failed to start")
		}
	}

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminSrv = admin.NewServer(cfg.Admin, executor)
		go func() {
			if err := adminSrv.Start(ctx); err != nil {
				logger.Logger.Error().Err(err).Msg("dbos: admin surface stopped")
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	c.out.PrintInfo(fmt.Sprintf("Received signal: %s. Shutting down...", sig))

	if watcher != nil {
		watcher.Stop()
	}
	if adminSrv != nil {
		_ = adminSrv.Stop(context.Background())
	}
	if err := executor.Destroy(context.Background()); err != nil {
		return fmt.Errorf("start: shutdown: %w", err)
	}
	return nil
}

func (c *StartCommand) openUserDatabase(cfg *config.Config) (*udb.UDB, error) {
	mode := cfg.Database.UDBMode
	if mode == "" {
		mode = "postgres"
	}
	switch mode {
	case "sqlite":
		return udb.Open(mode, "sqlite3", cfg.Database.UserDatabase)
	default:
		return udb.Open(mode, "pgx", userDatabaseDSN(cfg))
	}
}
