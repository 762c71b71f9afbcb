package sysdb

import (
	"github.com/hanzoai/dbosgo/pkg/dbos"
)

// validTransitions is the Lifecycle state machine from the workflow status
// diagram (§4.5): PENDING is the only non-terminal state and has exactly
// four outbound edges, all to terminal states.
var validTransitions = map[dbos.WorkflowStatusValue][]dbos.WorkflowStatusValue{
	dbos.StatusPending: {
		dbos.StatusSuccess,
		dbos.StatusError,
		dbos.StatusCancelled,
		dbos.StatusRetriesExceeded,
	},
	dbos.StatusSuccess:         {},
	dbos.StatusError:           {},
	dbos.StatusCancelled:       {},
	dbos.StatusRetriesExceeded: {},
}

// validateStatusTransition enforces the Lifecycle invariant: terminal states
// are write-once and PENDING may only move to one of its four terminal
// successors. Same-state transitions are idempotent no-ops (a buffered flush
// racing a direct write, for example).
func validateStatusTransition(current, next dbos.WorkflowStatusValue) error {
	if current == next {
		return nil
	}
	allowed, ok := validTransitions[current]
	if !ok {
		return &invalidTransitionError{From: current, To: next}
	}
	for _, a := range allowed {
		if a == next {
			return nil
		}
	}
	return &invalidTransitionError{From: current, To: next}
}

type invalidTransitionError struct {
	From, To dbos.WorkflowStatusValue
}

func (e *invalidTransitionError) Error() string {
	return "dbos: invalid workflow status transition " + string(e.From) + " -> " + string(e.To)
}
