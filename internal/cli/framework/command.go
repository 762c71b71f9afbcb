package framework

import (
	"github.com/spf13/cobra"

	"github.com/hanzoai/dbosgo/internal/config"
	"github.com/hanzoai/dbosgo/pkg/dbos"
	"github.com/hanzoai/dbosgo/pkg/dbos/sysdb"
	"github.com/hanzoai/dbosgo/pkg/dbos/udb"
)

// Command represents a CLI command that can be built into a Cobra command.
type Command interface {
	BuildCobraCommand() *cobra.Command
	GetName() string
	GetDescription() string
}

// ServiceContainer holds the services the init/migrate/rollback/start/debug
// commands share: the loaded config, the two database adapters, and the
// Executor once it has been constructed. The built-in commands open their own
// database handles and do not fill it in, so BaseCommand.Services is nil for
// them.
type ServiceContainer struct {
	Config   *config.Config
	SystemDB *sysdb.Postgres
	UserDB   *udb.UDB
	Executor *dbos.Executor
	Registry *dbos.Registry
}

// BaseCommand provides common functionality for all commands.
type BaseCommand struct {
	Services *ServiceContainer
}

// CommandRegistry manages registration and building of commands.
type CommandRegistry struct {
	commands []Command
}

// NewCommandRegistry creates a new command registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make([]Command, 0)}
}

// Register adds a command to the registry.
func (r *CommandRegistry) Register(cmd Command) {
	r.commands = append(r.commands, cmd)
}

// BuildCobraCommands converts all registered commands to Cobra commands.
func (r *CommandRegistry) BuildCobraCommands() []*cobra.Command {
	var cobraCommands []*cobra.Command
	for _, cmd := range r.commands {
		cobraCommands = append(cobraCommands, cmd.BuildCobraCommand())
	}
	return cobraCommands
}

// GetCommands returns all registered commands.
func (r *CommandRegistry) GetCommands() []Command {
	return r.commands
}
