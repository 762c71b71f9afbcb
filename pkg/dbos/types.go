// Package dbos implements the durable workflow execution core: an Executor,
// Workflow Context, System Database, and User Database Adapter that turn
// ordinary Go functions into exactly-once, crash-resumable workflows backed
// by PostgreSQL.
package dbos

import "time"

// WorkflowStatusValue is one of the lifecycle states a workflow row can hold.
type WorkflowStatusValue string

const (
	StatusPending        WorkflowStatusValue = "PENDING"
	StatusSuccess        WorkflowStatusValue = "SUCCESS"
	StatusError          WorkflowStatusValue = "ERROR"
	StatusCancelled      WorkflowStatusValue = "CANCELLED"
	StatusRetriesExceeded WorkflowStatusValue = "RETRIES_EXCEEDED"
)

// IsTerminal reports whether a status has no further outbound transitions.
func (s WorkflowStatusValue) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled, StatusRetriesExceeded:
		return true
	default:
		return false
	}
}

// Identity carries the authenticated principal a workflow was invoked under.
// It is recorded on WorkflowStatus and is opaque to the engine otherwise.
type Identity struct {
	AuthenticatedUser  string
	AssumedRole        string
	AuthenticatedRoles []string
}

// WorkflowStatus mirrors one row of dbos.workflow_status.
type WorkflowStatus struct {
	WorkflowUUID       string
	Status             WorkflowStatusValue
	Name               string
	ClassName          string
	ConfigName         string
	AuthenticatedUser  string
	AssumedRole        string
	AuthenticatedRoles string // JSON-encoded []string
	Request            string // opaque JSON, recorded verbatim
	Output             string // JSON, empty until SUCCESS
	Error              string // JSON-encoded error, empty until ERROR
	ExecutorID         string
	ApplicationVersion string
	CreatedAt          int64 // unix millis
	UpdatedAt          int64
	RecoveryAttempts   int64
	WorkflowTags       []string // admin-surface-only, not interpreted by the engine
}

// WorkflowFilter selects rows for getWorkflows (the admin surface, §6).
type WorkflowFilter struct {
	Name               string
	Status             WorkflowStatusValue
	AuthenticatedUser  string
	ApplicationVersion string
	StartTime          time.Time
	EndTime            time.Time
	Limit              int
}

// OperationOutput mirrors one row of dbos.operation_outputs.
type OperationOutput struct {
	WorkflowUUID string
	FunctionID   int
	Output       string
	Error        string
	TxnSnapshot  string
	TxnID        string
	CreatedAt    int64
}

// NullTopic is the sentinel stored for recv() calls that pass no topic.
const NullTopic = "__null_topic__"

// OperationKind classifies a registered operation symbol.
type OperationKind string

const (
	KindWorkflow        OperationKind = "workflow"
	KindTransaction     OperationKind = "transaction"
	KindCommunicator    OperationKind = "communicator"
	KindHandler         OperationKind = "handler"
	KindInitializer     OperationKind = "initializer"
	KindStoredProcedure OperationKind = "storedProcedure" // reserved, not implemented
)

// Isolation is the requested UDB transaction isolation level.
type Isolation string

const (
	IsolationSerializable   Isolation = "SERIALIZABLE"
	IsolationRepeatableRead Isolation = "REPEATABLE READ"
	IsolationReadCommitted  Isolation = "READ COMMITTED"
)

// StepConfig configures one registered operation.
type StepConfig struct {
	Isolation      Isolation // transactions only; default SERIALIZABLE
	ReadOnly       bool      // transactions only
	RetriesAllowed bool      // communicators only; false = run once
	MaxAttempts    int
	IntervalMillis int64
	BackoffFactor  float64
	RequiredRoles  []string
}

// DefaultStepConfig returns the zero-value defaults named in §4.2/§4.4.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		Isolation:      IsolationSerializable,
		RetriesAllowed: true,
		MaxAttempts:    3,
		IntervalMillis: 100,
		BackoffFactor:  2.0,
	}
}
