package dbos

import (
	"context"
	"fmt"

	"github.com/hanzoai/dbosgo/internal/logger"
)

// DebugContext re-executes a workflow against a previously recorded
// OperationOutputs stream (§4.5). Every step probes OperationOutputs and
// must find a recorded row; a missing row is a DebuggerError. Read-only
// transactions re-run the user body and compare the new output against the
// recorded one; non-replayable effects (send, setEvent) never fire — the
// recorded outcome is returned unconditionally.
type DebugContext struct {
	exec         *Executor
	baseCtx      context.Context
	workflowUUID string
	identity     Identity
	request      string
	fid          int
}

// NewDebugContext constructs a DebugContext bound to an existing,
// already-recorded workflowUUID.
func NewDebugContext(ctx context.Context, exec *Executor, workflowUUID string, identity Identity, request string) *DebugContext {
	return &DebugContext{exec: exec, baseCtx: ctx, workflowUUID: workflowUUID, identity: identity, request: request}
}

func (d *DebugContext) allocateFID() int {
	fid := d.fid
	d.fid++
	return fid
}

// mustFindRecorded probes OperationOutputs and fails with DebuggerError if
// the step has no recorded outcome — replay must never execute new logic.
func (d *DebugContext) mustFindRecorded(fid int) (OperationOutput, error) {
	out, found, err := d.exec.sysdb.CheckOperationOutput(d.baseCtx, d.workflowUUID, fid)
	if err != nil {
		return OperationOutput{}, err
	}
	if !found {
		return OperationOutput{}, &DebuggerError{WorkflowUUID: d.workflowUUID, Reason: fmt.Sprintf("cannot find recorded output for function_id %d", fid)}
	}
	return out, nil
}

// ReplayTransaction re-runs a @Transaction step. Read-only transactions
// re-execute the user body and compare the fresh output to the recorded one,
// logging a divergence warning rather than failing (§4.5); write transactions
// never re-run — the recorded output is returned directly since re-running
// them would duplicate the application's committed side effects.
func (d *DebugContext) ReplayTransaction(symbol, input string, udb UserDatabase) (string, error) {
	fid := d.allocateFID()
	recorded, err := d.mustFindRecorded(fid)
	if err != nil {
		return "", err
	}
	if recorded.Error != "" {
		return "", &recordedStepError{msg: recorded.Error}
	}

	reg, err := d.exec.registry.lookup(symbol)
	if err != nil {
		return "", err
	}
	if !reg.Config.ReadOnly {
		return recorded.Output, nil
	}

	fresh, txErr := udb.Transact(d.baseCtx, reg.Config, func(ctx context.Context, client any) (string, error) {
		return reg.Transaction(&Context{exec: d.exec, baseCtx: ctx, workflowUUID: d.workflowUUID}, client, input)
	})
	if txErr != nil {
		return recorded.Output, nil
	}
	if fresh != recorded.Output {
		logger.Logger.Warn().
			Str("workflow_uuid", d.workflowUUID).
			Int("function_id", fid).
			Str("recorded", recorded.Output).
			Str("fresh", fresh).
			Msg("dbos: replay divergence in read-only transaction")
	}
	return recorded.Output, nil
}

// ReplayCommunicator, ReplaySend, ReplaySetEvent, ReplayRecv, and
// ReplayGetEvent all short-circuit to the recorded outcome without
// re-invoking the user function or any non-replayable side effect (§4.5):
// the point of replay is to observe the original run, not to re-run it.
func (d *DebugContext) ReplayCommunicator(symbol, input string) (string, error) {
	fid := d.allocateFID()
	out, err := d.mustFindRecorded(fid)
	if err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", &recordedStepError{msg: out.Error}
	}
	return out.Output, nil
}

func (d *DebugContext) ReplaySend() error {
	_, err := d.mustFindRecorded(d.allocateFID())
	return err
}

func (d *DebugContext) ReplaySetEvent() error {
	_, err := d.mustFindRecorded(d.allocateFID())
	return err
}

func (d *DebugContext) ReplayRecv() (string, error) {
	out, err := d.mustFindRecorded(d.allocateFID())
	if err != nil {
		return "", err
	}
	return out.Output, nil
}

func (d *DebugContext) ReplayGetEvent() (string, error) {
	out, err := d.mustFindRecorded(d.allocateFID())
	if err != nil {
		return "", err
	}
	return out.Output, nil
}
