package dbos

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hanzoai/dbosgo/pkg/dbos/metrics"
)

// Context drives sequential execution of one workflow invocation (§4.2). It
// maintains the function_id counter, the bound workflow_uuid, identity, and
// request, and dispatches each step kind through the Executor's OAOO check.
//
// function_id assignment is serialized by mu per SPEC_FULL §5's
// thread-per-workflow model: each workflow(...) call runs its body on its own
// goroutine, so mu only needs to protect against a workflow body itself
// calling steps concurrently from nested goroutines, which the engine does
// not do but a misbehaving user body might. The OAOO probe/record pair is
// not held under mu.
type Context struct {
	exec         *Executor
	baseCtx      context.Context
	workflowUUID string
	identity     Identity
	request      string

	mu      sync.Mutex
	nextFID int
}

// WorkflowUUID returns the UUID bound to this context.
func (c *Context) WorkflowUUID() string { return c.workflowUUID }

// Identity returns the authenticated identity the workflow was invoked under.
func (c *Context) Identity() Identity { return c.identity }

// Request returns the opaque request payload recorded at init time.
func (c *Context) Request() string { return c.request }

// Context exposes the Go context.Context backing this workflow body, for
// cancellation-aware I/O inside user steps.
func (c *Context) Context() context.Context { return c.baseCtx }

func (c *Context) allocateFID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	fid := c.nextFID
	c.nextFID++
	return fid
}

// checkCancellation is consulted at every suspension point (§5): an
// in-flight body learns of cancellation at its next suspension point.
func (c *Context) checkCancellation() error {
	status, ok, err := c.exec.sysdb.GetWorkflowStatus(c.baseCtx, c.workflowUUID)
	if err != nil {
		return err
	}
	if ok && status.Status == StatusCancelled {
		return &WorkflowCancelledError{WorkflowUUID: c.workflowUUID}
	}
	return nil
}

// RunTransaction executes a registered @Transaction operation identified by
// symbol. It starts a UDB transaction at the operation's configured
// isolation level; within that same transaction it probes OperationOutputs,
// runs the user body if absent, and inserts the output row, so the
// application's effects and the OAOO record commit atomically (§4.2). On a
// serialization failure the whole UDB transaction is retried once. A
// duplicate-key race on the output row is not retried: the losing attempt
// returns the output already recorded for that function_id, or the
// WorkflowConflict if no recorded row can be read back.
func (c *Context) RunTransaction(symbol string, input string) (string, error) {
	if err := c.checkCancellation(); err != nil {
		return "", err
	}
	reg, err := c.exec.registry.lookup(symbol)
	if err != nil {
		return "", err
	}
	fid := c.allocateFID()

	if out, found, err := c.exec.sysdb.CheckOperationOutput(c.baseCtx, c.workflowUUID, fid); err != nil {
		return "", err
	} else if found {
		if out.Error != "" {
			return "", &recordedStepError{msg: out.Error}
		}
		return out.Output, nil
	}

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		output, txErr := c.exec.udb.Transact(c.baseCtx, reg.Config, func(ctx context.Context, client any) (string, error) {
			result, bodyErr := reg.Transaction(c, client, input)
			if bodyErr != nil {
				_ = c.exec.sysdb.RecordOperationError(ctx, c.workflowUUID, fid, bodyErr.Error())
				return "", bodyErr
			}
			if reg.Config.ReadOnly {
				return result, nil
			}
			if recErr := c.exec.sysdb.RecordOperationOutput(ctx, OperationOutput{
				WorkflowUUID: c.workflowUUID, FunctionID: fid, Output: result,
			}); recErr != nil {
				return "", recErr
			}
			return result, nil
		})
		if txErr == nil {
			return output, nil
		}

		// A duplicate-key race on the output row means another attempt
		// already committed for this (uuid, fid); the attempt that lost the
		// race returns the winner's recorded value rather than an error.
		if _, ok := txErr.(*WorkflowConflict); ok {
			if out, found, err := c.exec.sysdb.CheckOperationOutput(c.baseCtx, c.workflowUUID, fid); err == nil && found {
				return out.Output, nil
			}
			return "", txErr
		}

		lastErr = txErr
		if !isUDBSerializationFailure(txErr) {
			return "", txErr
		}
	}
	return "", lastErr
}

// RunCommunicator executes a registered idempotent external step with the
// operation's configured retry policy (§4.2 "Communicator").
func (c *Context) RunCommunicator(symbol string, input string) (string, error) {
	if err := c.checkCancellation(); err != nil {
		return "", err
	}
	reg, err := c.exec.registry.lookup(symbol)
	if err != nil {
		return "", err
	}
	fid := c.allocateFID()

	if out, found, err := c.exec.sysdb.CheckOperationOutput(c.baseCtx, c.workflowUUID, fid); err != nil {
		return "", err
	} else if found {
		if out.Error != "" {
			return "", &recordedStepError{msg: out.Error}
		}
		return out.Output, nil
	}

	output, attempts, runErr := runCommunicatorWithRetry(c.baseCtx, reg.Config, func(ctx context.Context) (string, error) {
		return reg.Communicator(c, input)
	})
	for retry := 1; retry < attempts; retry++ {
		metrics.IncrementStepRetry(symbolName(reg))
	}
	if runErr != nil {
		_ = c.exec.sysdb.RecordOperationError(c.baseCtx, c.workflowUUID, fid, runErr.Error())
		return "", runErr
	}
	if err := c.exec.sysdb.RecordOperationOutput(c.baseCtx, OperationOutput{
		WorkflowUUID: c.workflowUUID, FunctionID: fid, Output: output,
	}); err != nil {
		return "", err
	}
	return output, nil
}

// RunChildWorkflow starts symbol as a child workflow. The child's UUID is
// derived deterministically from the parent's UUID and the allocated fid
// (workflow_uuid + "-" + fid), so replay binds to the same child (§4.2).
func (c *Context) RunChildWorkflow(symbol string, input string) (*Handle, error) {
	if err := c.checkCancellation(); err != nil {
		return nil, err
	}
	fid := c.allocateFID()

	if out, found, err := c.exec.sysdb.CheckOperationOutput(c.baseCtx, c.workflowUUID, fid); err != nil {
		return nil, err
	} else if found {
		return c.exec.attachHandle(out.Output), nil
	}

	childUUID := c.workflowUUID + "-" + strconv.Itoa(fid)
	handle, err := c.exec.StartWorkflow(c.baseCtx, symbol, input, childUUID, c.identity, c.request)
	if err != nil {
		return nil, err
	}
	if err := c.exec.sysdb.RecordOperationOutput(c.baseCtx, OperationOutput{
		WorkflowUUID: c.workflowUUID, FunctionID: fid, Output: childUUID,
	}); err != nil {
		return nil, err
	}
	return handle, nil
}

// Send enqueues message into the (destinationUUID, topic) notification
// queue and records the send in OperationOutputs atomically (§4.2 "send").
func (c *Context) Send(destinationUUID, message, topic string) error {
	if err := c.checkCancellation(); err != nil {
		return err
	}
	fid := c.allocateFID()
	if topic == "" {
		topic = NullTopic
	}
	return c.exec.sysdb.Send(c.baseCtx, c.workflowUUID, fid, destinationUUID, message, topic)
}

// Recv waits for a message on this workflow's (workflow_uuid, topic) queue,
// up to timeout, returning timedOut=true (and a recorded null outcome) on
// expiry (§4.2 "recv").
func (c *Context) Recv(topic string, timeout time.Duration) (string, bool, error) {
	if err := c.checkCancellation(); err != nil {
		return "", false, err
	}
	fid := c.allocateFID()
	if topic == "" {
		topic = NullTopic
	}
	return c.exec.sysdb.Recv(c.baseCtx, c.workflowUUID, fid, topic, timeout)
}

// SetEvent publishes value under key for this workflow, once (§4.2
// "setEvent"). A second call with the same key fails with
// DuplicateWorkflowEvent.
func (c *Context) SetEvent(key, value string) error {
	if err := c.checkCancellation(); err != nil {
		return err
	}
	fid := c.allocateFID()
	return c.exec.sysdb.SetEvent(c.baseCtx, c.workflowUUID, fid, key, value)
}

// GetEvent reads the value published by targetUUID under key, waiting up to
// timeout (§4.2 "getEvent"). The OAOO record belongs to this (calling)
// workflow, not to targetUUID.
func (c *Context) GetEvent(targetUUID, key string, timeout time.Duration) (string, bool, error) {
	if err := c.checkCancellation(); err != nil {
		return "", false, err
	}
	fid := c.allocateFID()
	return c.exec.sysdb.GetEvent(c.baseCtx, c.workflowUUID, fid, targetUUID, key, timeout)
}

// Sleep records the scheduled wake time on first execution and blocks for
// the remaining duration; on replay the remaining time is recomputed from
// the recorded wake time so total wall-clock elapsed stays bounded by the
// original intent (§4.2 "sleep").
func (c *Context) Sleep(d time.Duration) error {
	if err := c.checkCancellation(); err != nil {
		return err
	}
	fid := c.allocateFID()

	if out, found, err := c.exec.sysdb.CheckOperationOutput(c.baseCtx, c.workflowUUID, fid); err != nil {
		return err
	} else if found {
		wakeAt, parseErr := time.Parse(time.RFC3339Nano, out.Output)
		if parseErr != nil {
			return nil
		}
		remaining := time.Until(wakeAt)
		if remaining <= 0 {
			return nil
		}
		d = remaining
	} else {
		wakeAt := time.Now().Add(d)
		if err := c.exec.sysdb.RecordOperationOutput(c.baseCtx, OperationOutput{
			WorkflowUUID: c.workflowUUID, FunctionID: fid, Output: wakeAt.Format(time.RFC3339Nano),
		}); err != nil {
			return err
		}
	}

	select {
	case <-c.baseCtx.Done():
		return c.baseCtx.Err()
	case <-time.After(d):
		return nil
	}
}
