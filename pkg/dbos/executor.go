package dbos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanzoai/dbosgo/internal/logger"
	"github.com/hanzoai/dbosgo/pkg/dbos/metrics"
)

// ExecutorConfig configures the Executor's identity and recovery behavior.
type ExecutorConfig struct {
	ExecutorID          string
	ApplicationVersion  string
	MaxRecoveryAttempts int64         // default 50
	RecoveryLockTTL     time.Duration // default 30s
	RecoveryInterval    time.Duration // no default here (internal/config uses 10s); 0 disables the recovery loop
}

// Executor maintains the operation registry; starts, resumes, and
// retrieves workflows; manages the output buffer and the recovery loop
// (§4.1). It is the only component application code interacts with directly.
type Executor struct {
	registry *Registry
	sysdb    SystemDatabase
	udb      UserDatabase
	config   ExecutorConfig

	mu        sync.RWMutex
	running   map[string]context.CancelFunc
	recoverCh chan struct{}
	doneCh    chan struct{}
}

// NewExecutor constructs an Executor bound to a registry and the two
// database adapters. Call Init before starting any workflow.
func NewExecutor(registry *Registry, sysdb SystemDatabase, udb UserDatabase, config ExecutorConfig) *Executor {
	if config.ExecutorID == "" {
		config.ExecutorID = "local"
	}
	if config.MaxRecoveryAttempts <= 0 {
		config.MaxRecoveryAttempts = 50
	}
	if config.RecoveryLockTTL <= 0 {
		config.RecoveryLockTTL = 30 * time.Second
	}
	return &Executor{
		registry: registry,
		sysdb:    sysdb,
		udb:      udb,
		config:   config,
		running:  make(map[string]context.CancelFunc),
		doneCh:   make(chan struct{}),
	}
}

// Init brings the SDB schema up to date and starts background tasks
// (notification listener, periodic buffer flush). Call once at startup.
func (e *Executor) Init(ctx context.Context) error {
	if err := e.sysdb.Init(ctx); err != nil {
		return &InitializationError{Reason: "system database", Err: err}
	}
	if e.config.RecoveryInterval > 0 {
		go e.recoveryLoop()
	}
	return nil
}

// Destroy stops background tasks, flushes the status buffer, and closes
// database connections. It does not wait for running workflow bodies to
// finish.
func (e *Executor) Destroy(ctx context.Context) error {
	close(e.doneCh)
	if err := e.sysdb.FlushWorkflowStatusBuffer(ctx); err != nil {
		logger.Logger.Warn().Err(err).Msg("dbos: final status flush failed")
	}
	return e.sysdb.Destroy(ctx)
}

// recoveryLoop runs one recovery sweep at startup and then one every
// RecoveryInterval until Destroy.
func (e *Executor) recoveryLoop() {
	ticker := time.NewTicker(e.config.RecoveryInterval)
	defer ticker.Stop()
	sweep := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := e.RecoverPendingWorkflows(ctx, e.config.ExecutorID); err != nil {
			logger.Logger.Warn().Err(err).Msg("dbos: recovery sweep failed")
		}
		cancel()
	}
	sweep()
	for {
		select {
		case <-e.doneCh:
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// StartWorkflow validates symbol is a registered workflow, resolves
// workflowUUID (generating one if empty), records PENDING status and inputs
// in one SDB transaction, and spawns the body on its own goroutine
// (SPEC_FULL §5 thread-per-workflow model). It does not await completion.
func (e *Executor) StartWorkflow(ctx context.Context, symbol, input, workflowUUID string, identity Identity, request string) (*Handle, error) {
	reg, err := e.registry.lookup(symbol)
	if err != nil {
		return nil, err
	}
	if reg.Kind != KindWorkflow {
		return nil, fmt.Errorf("dbos: %q is registered as %s, not a workflow", symbol, reg.Kind)
	}
	if workflowUUID == "" {
		workflowUUID = uuid.NewString()
	}

	committedInputs, err := e.sysdb.InitWorkflowStatus(ctx, WorkflowStatus{
		WorkflowUUID:       workflowUUID,
		Status:             StatusPending,
		Name:               reg.Name,
		ClassName:          reg.Class,
		AuthenticatedUser:  identity.AuthenticatedUser,
		AssumedRole:        identity.AssumedRole,
		Request:            request,
		ExecutorID:         e.config.ExecutorID,
		ApplicationVersion: e.config.ApplicationVersion,
	}, input)
	if err != nil {
		return nil, err
	}

	// A workflow that already reached a terminal status, or is already
	// running in this process, is not executed again.
	handle := &Handle{workflowUUID: workflowUUID, sysdb: e.sysdb}
	if status, found, err := e.sysdb.GetWorkflowStatus(ctx, workflowUUID); err != nil {
		return nil, err
	} else if found && status.Status.IsTerminal() {
		return handle, nil
	}
	e.mu.RLock()
	_, running := e.running[workflowUUID]
	e.mu.RUnlock()
	if running {
		return handle, nil
	}

	e.spawn(symbol, reg, workflowUUID, identity, request, committedInputs)
	return handle, nil
}

func (e *Executor) spawn(symbol string, reg registration, workflowUUID string, identity Identity, request, input string) {
	bodyCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.running[workflowUUID] = cancel
	e.mu.Unlock()

	metrics.RecordWorkflowStarted(symbolName(reg))

	go func() {
		startedAt := time.Now()
		defer func() {
			e.mu.Lock()
			delete(e.running, workflowUUID)
			metrics.SetPendingWorkflows(len(e.running))
			e.mu.Unlock()
			cancel()
		}()
		e.mu.Lock()
		metrics.SetPendingWorkflows(len(e.running))
		e.mu.Unlock()

		wfCtx := &Context{
			exec:         e,
			baseCtx:      bodyCtx,
			workflowUUID: workflowUUID,
			identity:     identity,
			request:      request,
		}
		status := e.runBody(wfCtx, reg, input)
		if status != "" {
			metrics.RecordWorkflowCompleted(symbolName(reg), string(status), time.Since(startedAt))
		}
	}()
}

// runBody executes the workflow body and records its terminal outcome.
// Success uses the buffered write path (§4.1 "non-critical status fields");
// errors are recorded synchronously since an ERROR transition gates
// recovery's decision to stop re-invoking the workflow. A body that returns
// WorkflowCancelledError writes nothing here (CancelWorkflow has already
// written CANCELLED), and runBody returns "" for it.
func (e *Executor) runBody(wfCtx *Context, reg registration, input string) WorkflowStatusValue {
	output, err := reg.Workflow(wfCtx, input)
	if err != nil {
		if _, cancelled := err.(*WorkflowCancelledError); cancelled {
			return ""
		}
		if recErr := e.sysdb.RecordWorkflowError(wfCtx.baseCtx, wfCtx.workflowUUID, err.Error()); recErr != nil {
			logger.Logger.Error().Err(recErr).Str("workflow_uuid", wfCtx.workflowUUID).Msg("dbos: failed to record workflow error")
		}
		return StatusError
	}
	e.sysdb.BufferWorkflowStatus(WorkflowStatus{
		WorkflowUUID: wfCtx.workflowUUID,
		Status:       StatusSuccess,
		Output:       output,
	})
	return StatusSuccess
}

// attachHandle returns a Handle for an already-known UUID, used when a
// child-workflow OAOO probe finds a prior recorded childUUID.
func (e *Executor) attachHandle(workflowUUID string) *Handle {
	return &Handle{workflowUUID: workflowUUID, sysdb: e.sysdb}
}

// RetrieveWorkflow returns a Handle bound to an existing workflowUUID
// without starting anything new.
func (e *Executor) RetrieveWorkflow(workflowUUID string) *Handle {
	return &Handle{workflowUUID: workflowUUID, sysdb: e.sysdb}
}

// RunTransaction is the `transaction(op, params, args)` convenience wrapper
// (§4.1): synthesizes a single-step temp workflow and invokes it
// synchronously, so the transaction's own @Transaction operation governs
// the OAOO probe rather than re-wrapping that logic here.
func (e *Executor) RunTransaction(ctx context.Context, symbol, input string, identity Identity) (string, error) {
	tempUUID := uuid.NewString()
	wfCtx := &Context{exec: e, baseCtx: ctx, workflowUUID: tempUUID, identity: identity}
	if _, err := e.sysdb.InitWorkflowStatus(ctx, WorkflowStatus{
		WorkflowUUID: tempUUID, Status: StatusPending, Name: "transaction:" + symbol,
		ExecutorID: e.config.ExecutorID, ApplicationVersion: e.config.ApplicationVersion,
	}, input); err != nil {
		return "", err
	}
	output, err := wfCtx.RunTransaction(symbol, input)
	if err != nil {
		_ = e.sysdb.RecordWorkflowError(ctx, tempUUID, err.Error())
		return "", err
	}
	e.sysdb.BufferWorkflowStatus(WorkflowStatus{WorkflowUUID: tempUUID, Status: StatusSuccess, Output: output})
	return output, nil
}

// RunExternal is the `external(op, params, args)` convenience wrapper
// (§4.1): the communicator equivalent of RunTransaction.
func (e *Executor) RunExternal(ctx context.Context, symbol, input string, identity Identity) (string, error) {
	tempUUID := uuid.NewString()
	wfCtx := &Context{exec: e, baseCtx: ctx, workflowUUID: tempUUID, identity: identity}
	if _, err := e.sysdb.InitWorkflowStatus(ctx, WorkflowStatus{
		WorkflowUUID: tempUUID, Status: StatusPending, Name: "external:" + symbol,
		ExecutorID: e.config.ExecutorID, ApplicationVersion: e.config.ApplicationVersion,
	}, input); err != nil {
		return "", err
	}
	output, err := wfCtx.RunCommunicator(symbol, input)
	if err != nil {
		_ = e.sysdb.RecordWorkflowError(ctx, tempUUID, err.Error())
		return "", err
	}
	e.sysdb.BufferWorkflowStatus(WorkflowStatus{WorkflowUUID: tempUUID, Status: StatusSuccess, Output: output})
	return output, nil
}

// GetWorkflows implements the admin-surface query (§6, §4.3 getWorkflows).
func (e *Executor) GetWorkflows(ctx context.Context, filter WorkflowFilter) ([]WorkflowStatus, error) {
	return e.sysdb.GetWorkflows(ctx, filter)
}

// CancelWorkflow marks workflowUUID CANCELLED if non-terminal.
func (e *Executor) CancelWorkflow(ctx context.Context, workflowUUID string) error {
	return e.sysdb.CancelWorkflow(ctx, workflowUUID)
}

// RecoverPendingWorkflows re-invokes every PENDING workflow owned by
// executorID (§4.1). It first acquires the advisory recovery lock for that
// executor identity so at most one process recovers a given partition
// concurrently; workflows whose recovery_attempts exceeds MaxRecoveryAttempts
// are marked RETRIES_EXCEEDED and skipped rather than re-invoked.
func (e *Executor) RecoverPendingWorkflows(ctx context.Context, executorID string) ([]*Handle, error) {
	acquired, err := e.sysdb.AcquireRecoveryLock(ctx, executorID, e.config.RecoveryLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}
	defer func() {
		if err := e.sysdb.ReleaseRecoveryLock(ctx, executorID); err != nil {
			logger.Logger.Warn().Err(err).Str("executor_id", executorID).Msg("dbos: failed to release recovery lock")
		}
	}()

	uuids, err := e.sysdb.GetPendingWorkflows(ctx, executorID, e.config.ApplicationVersion)
	if err != nil {
		return nil, err
	}

	var handles []*Handle
	for _, workflowUUID := range uuids {
		handle, err := e.recoverOne(ctx, workflowUUID)
		if err != nil {
			logger.Logger.Warn().Err(err).Str("workflow_uuid", workflowUUID).Msg("dbos: failed to recover workflow")
			continue
		}
		if handle != nil {
			handles = append(handles, handle)
		}
	}
	return handles, nil
}

func (e *Executor) recoverOne(ctx context.Context, workflowUUID string) (*Handle, error) {
	attempts, err := e.sysdb.IncrementRecoveryAttempts(ctx, workflowUUID)
	if err != nil {
		return nil, err
	}
	metrics.IncrementRecoveryAttempt(e.config.ExecutorID)
	if attempts > e.config.MaxRecoveryAttempts {
		if err := e.sysdb.MarkRetriesExceeded(ctx, workflowUUID); err != nil {
			return nil, err
		}
		return nil, &DeadLetterQueueError{WorkflowUUID: workflowUUID, RecoveryAttempts: attempts, MaxAttempts: e.config.MaxRecoveryAttempts}
	}

	status, ok, err := e.sysdb.GetWorkflowStatus(ctx, workflowUUID)
	if err != nil {
		return nil, err
	}
	if !ok || status.Status != StatusPending {
		return nil, nil
	}
	inputs, ok, err := e.sysdb.GetWorkflowInputs(ctx, workflowUUID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dbos: no recorded inputs for pending workflow %s", workflowUUID)
	}

	reg, err := e.registry.lookupByName(status.ClassName, status.Name)
	if err != nil {
		return nil, err
	}
	identity := Identity{AuthenticatedUser: status.AuthenticatedUser, AssumedRole: status.AssumedRole}
	e.spawn(symbolName(reg), reg, workflowUUID, identity, status.Request, inputs)
	return &Handle{workflowUUID: workflowUUID, sysdb: e.sysdb}, nil
}

// ExecuteWorkflowUUID replays a specific workflow by UUID (used by tests,
// admin, and debug), re-invoking it with its recorded inputs, identity and
// request. Unlike recoverOne it does not increment recovery_attempts and
// does not require the workflow to be PENDING.
func (e *Executor) ExecuteWorkflowUUID(ctx context.Context, workflowUUID string) (*Handle, error) {
	status, ok, err := e.sysdb.GetWorkflowStatus(ctx, workflowUUID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dbos: unknown workflow %s", workflowUUID)
	}
	inputs, ok, err := e.sysdb.GetWorkflowInputs(ctx, workflowUUID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("dbos: no recorded inputs for workflow %s", workflowUUID)
	}
	reg, err := e.registry.lookupByName(status.ClassName, status.Name)
	if err != nil {
		return nil, err
	}
	identity := Identity{AuthenticatedUser: status.AuthenticatedUser, AssumedRole: status.AssumedRole}
	e.spawn(symbolName(reg), reg, workflowUUID, identity, status.Request, inputs)
	return &Handle{workflowUUID: workflowUUID, sysdb: e.sysdb}, nil
}
