package dbos

import "fmt"

// The error kinds named in §7. Callers distinguish them with errors.As, not
// by matching message text.

// InitializationError indicates configuration or schema setup failed; fatal
// at process start.
type InitializationError struct {
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("dbos: initialization failed: %s: %v", e.Reason, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// NotRegisteredError indicates an invocation targeted an unknown operation.
type NotRegisteredError struct {
	Symbol string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("dbos: operation %q is not registered", e.Symbol)
}

// WorkflowConflict indicates a duplicate-key collision on OperationOutputs:
// either a racing identical invocation, or a determinism violation by the
// user's workflow body.
type WorkflowConflict struct {
	WorkflowUUID string
	FunctionID   int
}

func (e *WorkflowConflict) Error() string {
	return fmt.Sprintf("dbos: conflicting write to operation output (%s, %d)", e.WorkflowUUID, e.FunctionID)
}

// ConflictingWorkflowError indicates a UUID was reused with a different
// workflow name/class/config than the first recorded invocation.
type ConflictingWorkflowError struct {
	WorkflowUUID string
	Reason       string
}

func (e *ConflictingWorkflowError) Error() string {
	return fmt.Sprintf("dbos: workflow %s conflicts with prior invocation: %s", e.WorkflowUUID, e.Reason)
}

// DuplicateWorkflowEvent indicates setEvent was called twice with the same key.
type DuplicateWorkflowEvent struct {
	WorkflowUUID string
	Key          string
}

func (e *DuplicateWorkflowEvent) Error() string {
	return fmt.Sprintf("dbos: event key %q already set for workflow %s", e.Key, e.WorkflowUUID)
}

// DeadLetterQueueError indicates recovery_attempts exceeded maxRecoveryAttempts.
type DeadLetterQueueError struct {
	WorkflowUUID     string
	RecoveryAttempts int64
	MaxAttempts      int64
}

func (e *DeadLetterQueueError) Error() string {
	return fmt.Sprintf("dbos: workflow %s exceeded max recovery attempts (%d > %d), moved to dead-letter queue",
		e.WorkflowUUID, e.RecoveryAttempts, e.MaxAttempts)
}

// WorkflowCancelledError is observed by an in-flight body after cancellation.
type WorkflowCancelledError struct {
	WorkflowUUID string
}

func (e *WorkflowCancelledError) Error() string {
	return fmt.Sprintf("dbos: workflow %s was cancelled", e.WorkflowUUID)
}

// DebuggerError indicates replay diverged from the recorded stream.
type DebuggerError struct {
	WorkflowUUID string
	Reason       string
}

func (e *DebuggerError) Error() string {
	return fmt.Sprintf("dbos: debug replay of %s diverged: %s", e.WorkflowUUID, e.Reason)
}

// ResponseError is an HTTP-shaped application error, propagated but not
// interpreted by the core.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("dbos: response error %d: %s", e.StatusCode, e.Message)
}

// NotAuthorizedError is an HTTP-shaped application error, propagated but not
// interpreted by the core.
type NotAuthorizedError struct {
	RequiredRoles []string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("dbos: not authorized, requires one of roles %v", e.RequiredRoles)
}

// invalidWorkflowStateTransitionError describes a move the Lifecycle
// invariant in §3 forbids. Nothing in the engine constructs it: the
// transition check lives in pkg/dbos/sysdb (validateStatusTransition), and a
// forbidden buffered status write is dropped there without an error.
type invalidWorkflowStateTransitionError struct {
	From, To WorkflowStatusValue
}

func (e *invalidWorkflowStateTransitionError) Error() string {
	return fmt.Sprintf("dbos: invalid workflow status transition %s -> %s", e.From, e.To)
}
