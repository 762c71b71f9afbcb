package dbos

import "context"

// Handle is returned by workflow(...) without awaiting completion (§4
// "Executor"). GetResult blocks until the workflow reaches a terminal
// state.
type Handle struct {
	workflowUUID string
	sysdb        SystemDatabase
}

// WorkflowUUID returns the handle's bound UUID.
func (h *Handle) WorkflowUUID() string { return h.workflowUUID }

// GetResult blocks until the workflow referenced by this handle reaches a
// terminal state and returns its final status row (output or error, per
// WorkflowStatus.Status).
func (h *Handle) GetResult(ctx context.Context) (WorkflowStatus, error) {
	return h.sysdb.GetWorkflowResult(ctx, h.workflowUUID)
}

// GetStatus returns the current status snapshot without blocking.
func (h *Handle) GetStatus(ctx context.Context) (WorkflowStatus, bool, error) {
	return h.sysdb.GetWorkflowStatus(ctx, h.workflowUUID)
}
