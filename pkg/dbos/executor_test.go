package dbos_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanzoai/dbosgo/pkg/dbos"
	"github.com/hanzoai/dbosgo/pkg/dbos/sysdb"
)

func newTestExecutor(t *testing.T, cfg dbos.ExecutorConfig) (*dbos.Executor, *sysdb.Memory) {
	t.Helper()
	sdb := sysdb.NewMemory()
	registry := dbos.NewRegistry()
	exec := dbos.NewExecutor(registry, sdb, nil, cfg)
	require.NoError(t, exec.Init(context.Background()))
	t.Cleanup(func() { _ = exec.Destroy(context.Background()) })
	return exec, sdb
}

func TestExecutor_StartWorkflow_RunsToSuccess(t *testing.T) {
	sdb := sysdb.NewMemory()
	registry := dbos.NewRegistry()
	registry.RegisterWorkflow("greet", "Greet", "", dbos.DefaultStepConfig(), func(ctx *dbos.Context, input string) (string, error) {
		return "hello " + input, nil
	})
	exec := dbos.NewExecutor(registry, sdb, nil, dbos.ExecutorConfig{ExecutorID: "e1"})
	require.NoError(t, exec.Init(context.Background()))
	defer exec.Destroy(context.Background())

	handle, err := exec.StartWorkflow(context.Background(), "greet", "world", "", dbos.Identity{}, "")
	require.NoError(t, err)
	require.NotEmpty(t, handle.WorkflowUUID())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := handle.GetResult(ctx)
	require.NoError(t, err)
	require.Equal(t, dbos.StatusSuccess, status.Status)
	require.Equal(t, "hello world", status.Output)
}

func TestExecutor_StartWorkflow_RecordsError(t *testing.T) {
	sdb := sysdb.NewMemory()
	registry := dbos.NewRegistry()
	boom := errors.New("boom")
	registry.RegisterWorkflow("fails", "Fails", "", dbos.DefaultStepConfig(), func(ctx *dbos.Context, input string) (string, error) {
		return "", boom
	})
	exec := dbos.NewExecutor(registry, sdb, nil, dbos.ExecutorConfig{ExecutorID: "e1"})
	require.NoError(t, exec.Init(context.Background()))
	defer exec.Destroy(context.Background())

	handle, err := exec.StartWorkflow(context.Background(), "fails", "", "", dbos.Identity{}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := handle.GetResult(ctx)
	require.NoError(t, err)
	require.Equal(t, dbos.StatusError, status.Status)
	require.Contains(t, status.Error, "boom")
}

func TestExecutor_StartWorkflow_UnregisteredSymbol(t *testing.T) {
	exec, _ := newTestExecutor(t, dbos.ExecutorConfig{ExecutorID: "e1"})
	_, err := exec.StartWorkflow(context.Background(), "nope", "", "", dbos.Identity{}, "")
	require.Error(t, err)
	var notRegistered *dbos.NotRegisteredError
	require.ErrorAs(t, err, &notRegistered)
}

// TestExecutor_StartWorkflow_OAOO verifies that starting the same
// workflow_uuid twice does not re-run the body: the second call observes the
// already-committed inputs and the workflow only executes once.
func TestExecutor_StartWorkflow_OAOO(t *testing.T) {
	sdb := sysdb.NewMemory()
	registry := dbos.NewRegistry()
	runs := 0
	registry.RegisterWorkflow("once", "Once", "", dbos.DefaultStepConfig(), func(ctx *dbos.Context, input string) (string, error) {
		runs++
		return input, nil
	})
	exec := dbos.NewExecutor(registry, sdb, nil, dbos.ExecutorConfig{ExecutorID: "e1"})
	require.NoError(t, exec.Init(context.Background()))
	defer exec.Destroy(context.Background())

	const uuid = "fixed-uuid"
	h1, err := exec.StartWorkflow(context.Background(), "once", "first", uuid, dbos.Identity{}, "")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status1, err := h1.GetResult(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", status1.Output)

	// A second StartWorkflow call with the same UUID but different input must
	// not overwrite the committed input nor re-execute the body.
	h2, err := exec.StartWorkflow(context.Background(), "once", "second", uuid, dbos.Identity{}, "")
	require.NoError(t, err)
	status2, err := h2.GetResult(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", status2.Output)
	require.Equal(t, 1, runs)
}

func TestExecutor_CancelWorkflow_MarksRunningWorkflowCancelled(t *testing.T) {
	sdb := sysdb.NewMemory()
	registry := dbos.NewRegistry()
	started := make(chan struct{})
	registry.RegisterWorkflow("waits", "Waits", "", dbos.DefaultStepConfig(), func(ctx *dbos.Context, input string) (string, error) {
		close(started)
		if _, _, err := ctx.Recv("", 2*time.Second); err != nil {
			return "", err
		}
		return "done", nil
	})
	exec := dbos.NewExecutor(registry, sdb, nil, dbos.ExecutorConfig{ExecutorID: "e1"})
	require.NoError(t, exec.Init(context.Background()))
	defer exec.Destroy(context.Background())

	handle, err := exec.StartWorkflow(context.Background(), "waits", "", "waiting-uuid", dbos.Identity{}, "")
	require.NoError(t, err)
	<-started
	require.NoError(t, exec.CancelWorkflow(context.Background(), handle.WorkflowUUID()))

	status, ok, err := handle.GetStatus(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dbos.StatusCancelled, status.Status)
}

func TestExecutor_RecoverPendingWorkflows_ReInvokesAndCompletes(t *testing.T) {
	sdb := sysdb.NewMemory()
	registry := dbos.NewRegistry()
	registry.RegisterWorkflow("recoverable", "Recoverable", "", dbos.DefaultStepConfig(), func(ctx *dbos.Context, input string) (string, error) {
		return "recovered:" + input, nil
	})

	ctx := context.Background()
	const uuid = "pending-uuid"
	_, err := sdb.InitWorkflowStatus(ctx, dbos.WorkflowStatus{
		WorkflowUUID: uuid,
		Status:       dbos.StatusPending,
		Name:         "Recoverable",
		ExecutorID:   "e1",
	}, "seed-input")
	require.NoError(t, err)

	exec := dbos.NewExecutor(registry, sdb, nil, dbos.ExecutorConfig{ExecutorID: "e1"})
	require.NoError(t, exec.Init(ctx))
	defer exec.Destroy(ctx)

	handles, err := exec.RecoverPendingWorkflows(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, handles, 1)

	resultCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status, err := handles[0].GetResult(resultCtx)
	require.NoError(t, err)
	require.Equal(t, dbos.StatusSuccess, status.Status)
	require.Equal(t, "recovered:seed-input", status.Output)
}

// TestExecutor_RecoverPendingWorkflows_MarksRetriesExceeded drives a
// never-completing workflow through two recovery sweeps with
// MaxRecoveryAttempts=1: the first sweep increments attempts to 1 (at the
// limit, still recovered), the second increments to 2 (over the limit),
// which must mark the row RETRIES_EXCEEDED rather than spawning it again.
func TestExecutor_RecoverPendingWorkflows_MarksRetriesExceeded(t *testing.T) {
	sdb := sysdb.NewMemory()
	registry := dbos.NewRegistry()
	registry.RegisterWorkflow("stuck", "Stuck", "", dbos.DefaultStepConfig(), func(ctx *dbos.Context, input string) (string, error) {
		<-ctx.Context().Done()
		return "", ctx.Context().Err()
	})

	ctx := context.Background()
	const uuid = "stuck-uuid"
	_, err := sdb.InitWorkflowStatus(ctx, dbos.WorkflowStatus{
		WorkflowUUID: uuid, Status: dbos.StatusPending, Name: "Stuck", ExecutorID: "e1",
	}, "")
	require.NoError(t, err)

	exec := dbos.NewExecutor(registry, sdb, nil, dbos.ExecutorConfig{ExecutorID: "e1", MaxRecoveryAttempts: 1})
	require.NoError(t, exec.Init(ctx))

	_, err = exec.RecoverPendingWorkflows(ctx, "e1")
	require.NoError(t, err)
	status, ok, err := sdb.GetWorkflowStatus(ctx, uuid)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dbos.StatusPending, status.Status)

	_, err = exec.RecoverPendingWorkflows(ctx, "e1")
	require.NoError(t, err)
	status, ok, err = sdb.GetWorkflowStatus(ctx, uuid)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, dbos.StatusRetriesExceeded, status.Status)
}
