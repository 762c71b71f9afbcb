package dbos

import (
	"context"
	"time"
)

// SystemDatabase is the interface the Executor and Workflow Context use for
// all durable state (§4.3). It is defined here, not in pkg/dbos/sysdb, so
// that this package can depend on the interface without depending on either
// concrete backend — pkg/dbos/sysdb.Postgres and pkg/dbos/sysdb.Memory both
// implement it by importing this package, never the reverse.
type SystemDatabase interface {
	// InitWorkflowStatus inserts WorkflowStatus PENDING and WorkflowInputs if
	// absent, in one transaction, and returns the committed inputs (first
	// writer wins). status.Status must be StatusPending on entry.
	InitWorkflowStatus(ctx context.Context, status WorkflowStatus, inputs string) (committedInputs string, err error)

	// CheckWorkflowOutput reads the status row. ok is false when the row is
	// PENDING or missing; err carries the deserialized error when ERROR.
	CheckWorkflowOutput(ctx context.Context, workflowUUID string) (output string, ok bool, err error)

	// BufferWorkflowStatus queues a non-critical terminal status write
	// (§4.1 "Buffered writes"). FlushWorkflowStatusBuffer commits the batch.
	BufferWorkflowStatus(status WorkflowStatus)
	FlushWorkflowStatusBuffer(ctx context.Context) error

	// RecordWorkflowError performs a synchronous, write-once ERROR transition.
	RecordWorkflowError(ctx context.Context, workflowUUID string, errJSON string) error

	// CancelWorkflow sets status to CANCELLED if non-terminal and zeroes
	// recovery_attempts so recovery will not resurrect it.
	CancelWorkflow(ctx context.Context, workflowUUID string) error

	// CheckOperationOutput probes OperationOutputs[uuid, fid].
	CheckOperationOutput(ctx context.Context, workflowUUID string, functionID int) (out OperationOutput, found bool, err error)
	RecordOperationOutput(ctx context.Context, out OperationOutput) error
	RecordOperationError(ctx context.Context, workflowUUID string, functionID int, errJSON string) error

	// Send enqueues a Notifications row and records the OperationOutputs row
	// in one transaction.
	Send(ctx context.Context, senderUUID string, functionID int, destinationUUID, message, topic string) error

	// Recv implements the recv() protocol in §4.2: probe, wait-on-dispatcher,
	// poll-and-delete, record.
	Recv(ctx context.Context, receiverUUID string, functionID int, topic string, timeout time.Duration) (message string, timedOut bool, err error)

	// SetEvent asserts no prior value and inserts the event + output rows.
	SetEvent(ctx context.Context, workflowUUID string, functionID int, key, value string) error

	// GetEvent implements the getEvent() protocol: probe, wait, record. The
	// OAOO record is keyed by callerUUID/functionID (the workflow invoking
	// getEvent), not targetUUID (the workflow whose SetEvent value is read).
	GetEvent(ctx context.Context, callerUUID string, functionID int, targetUUID, key string, timeout time.Duration) (value string, timedOut bool, err error)

	// GetPendingWorkflows returns workflow UUIDs owned by executorID whose
	// status is PENDING.
	GetPendingWorkflows(ctx context.Context, executorID, applicationVersion string) ([]string, error)

	// GetWorkflowStatus returns the status snapshot, or ok=false if unknown.
	GetWorkflowStatus(ctx context.Context, workflowUUID string) (status WorkflowStatus, ok bool, err error)

	// GetWorkflowInputs returns the recorded input args for a workflow.
	GetWorkflowInputs(ctx context.Context, workflowUUID string) (inputs string, ok bool, err error)

	// GetWorkflowResult blocks until the workflow reaches a terminal state
	// (or ctx is done) and returns the final status row.
	GetWorkflowResult(ctx context.Context, workflowUUID string) (WorkflowStatus, error)

	// GetWorkflows implements the admin-surface query (§6).
	GetWorkflows(ctx context.Context, filter WorkflowFilter) ([]WorkflowStatus, error)

	// IncrementRecoveryAttempts increments recovery_attempts and returns the
	// new count; the caller compares against maxRecoveryAttempts.
	IncrementRecoveryAttempts(ctx context.Context, workflowUUID string) (int64, error)

	// MarkRetriesExceeded transitions the row to RETRIES_EXCEEDED.
	MarkRetriesExceeded(ctx context.Context, workflowUUID string) error

	// AcquireRecoveryLock is the advisory lock used so more than one
	// executor process may safely attempt to recover the same executor_id
	// partition (§4 component design notes).
	AcquireRecoveryLock(ctx context.Context, executorID string, ttl time.Duration) (acquired bool, err error)
	ReleaseRecoveryLock(ctx context.Context, executorID string) error

	// Subscribe registers a waiter on the given dispatcher key
	// ("<uuid>::<topic>" or "<uuid>::<key>") and returns a channel that
	// receives a value whenever the matching trigger fires. Callers must
	// always re-read from the database after waking (spurious wakes) and
	// call the returned unsubscribe function when done.
	Subscribe(key string) (ch <-chan struct{}, unsubscribe func())

	// Init brings the schema up to date (idempotent) and starts the
	// background LISTEN connection and buffer-flush ticker.
	Init(ctx context.Context) error
	// Destroy stops background tasks and closes connections.
	Destroy(ctx context.Context) error
}

// UserDatabase abstracts the application's own database behind one
// operation (§4.4): run body inside a transaction at the requested
// isolation/readOnly, exposing the underlying client opaquely so this
// package never depends on a specific SQL driver. pkg/dbos/udb.UDB
// implements this by importing this package, never the reverse.
type UserDatabase interface {
	Transact(ctx context.Context, config StepConfig, body func(ctx context.Context, client any) (string, error)) (string, error)
	Mode() string
}
