package dbos

import (
	"fmt"
	"sync"
)

// WorkflowFunc is a registered workflow body. args/output are opaque
// JSON-encoded payloads; the Executor never inspects their shape.
type WorkflowFunc func(ctx *Context, input string) (string, error)

// TransactionFunc is a registered @Transaction body. client is the *sqlx.Tx
// handed back by the UDB adapter, typed as `any` here so this package does
// not import udb (which would create a cycle back through StepConfig).
type TransactionFunc func(ctx *Context, client any, input string) (string, error)

// CommunicatorFunc is a registered idempotent external-call step.
type CommunicatorFunc func(ctx *Context, input string) (string, error)

// registration is the {symbol, name, class, kind, config, roles} tuple named
// in spec.md §4's Registry responsibility.
type registration struct {
	Name    string
	Class   string
	Kind    OperationKind
	Config  StepConfig
	Workflow     WorkflowFunc
	Transaction  TransactionFunc
	Communicator CommunicatorFunc
}

// Registry associates each operation symbol with its kind, configuration,
// and required roles (spec.md §4 "Registry & Config"). Lookup is by the
// symbol string supplied at RegisterWorkflow/RegisterTransaction time —
// portable Go stand-in for the source language's function-symbol identity
// comparison, since Go has no stable runtime function-value equality.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]registration
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]registration)}
}

// RegisterWorkflow associates symbol with a workflow body. Call during
// program init, before Executor.Init.
func (r *Registry) RegisterWorkflow(symbol, name, class string, config StepConfig, fn WorkflowFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[symbol] = registration{Name: name, Class: class, Kind: KindWorkflow, Config: config, Workflow: fn}
}

// RegisterTransaction associates symbol with a @Transaction body.
func (r *Registry) RegisterTransaction(symbol, name, class string, config StepConfig, fn TransactionFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[symbol] = registration{Name: name, Class: class, Kind: KindTransaction, Config: config, Transaction: fn}
}

// RegisterCommunicator associates symbol with an idempotent external step.
func (r *Registry) RegisterCommunicator(symbol, name, class string, config StepConfig, fn CommunicatorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[symbol] = registration{Name: name, Class: class, Kind: KindCommunicator, Config: config, Communicator: fn}
}

// lookup returns the registration for symbol, or NotRegisteredError.
func (r *Registry) lookup(symbol string) (registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.ops[symbol]
	if !ok {
		return registration{}, &NotRegisteredError{Symbol: symbol}
	}
	return reg, nil
}

// lookupByName finds the registration recorded on a WorkflowStatus row by
// its class and name, used by recovery and debug replay where only the
// persisted name/class — not the original registration symbol — survives a
// process restart.
func (r *Registry) lookupByName(class, name string) (registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.ops {
		if reg.Class == class && reg.Name == name {
			return reg, nil
		}
	}
	return registration{}, &NotRegisteredError{Symbol: fmt.Sprintf("%s.%s", class, name)}
}

// symbolName returns a human-readable "class.name" label for logging.
func symbolName(reg registration) string {
	if reg.Class == "" {
		return reg.Name
	}
	return fmt.Sprintf("%s.%s", reg.Class, reg.Name)
}
