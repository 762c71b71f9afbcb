package sysdb

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hanzoai/dbosgo/pkg/dbos"
)

// notificationRow is one queued message in the in-memory notifications table.
type notificationRow struct {
	destinationUUID string
	topic           string
	message         string
	createdAt       time.Time
	seq             int64
}

// Memory is a hand-rolled in-memory fake of SystemDatabase. It implements the
// same OAOO, FIFO, and write-once invariants as Postgres, minus actual
// persistence, so the Executor and Workflow Context can be unit-tested
// without a live database (SPEC_FULL §2.1 "Test tooling").
type Memory struct {
	mu sync.Mutex

	statuses map[string]dbos.WorkflowStatus
	inputs   map[string]string
	outputs  map[string]dbos.OperationOutput // key: uuid + "/" + fid
	events   map[string]string               // key: uuid + "::" + key
	notifs   []notificationRow
	locks    map[string]time.Time // executorID -> expiresAt
	seq      int64

	dispatcher *dispatcher
}

func opKey(uuid string, fid int) string {
	return uuid + "/" + strconv.Itoa(fid)
}

// NewMemory constructs an empty in-memory SystemDatabase fake.
func NewMemory() *Memory {
	return &Memory{
		statuses:   make(map[string]dbos.WorkflowStatus),
		inputs:     make(map[string]string),
		outputs:    make(map[string]dbos.OperationOutput),
		events:     make(map[string]string),
		locks:      make(map[string]time.Time),
		dispatcher: newDispatcher(),
	}
}

func (m *Memory) Init(ctx context.Context) error    { return nil }
func (m *Memory) Destroy(ctx context.Context) error { return nil }

func (m *Memory) Subscribe(key string) (<-chan struct{}, func()) {
	return m.dispatcher.subscribe(key)
}

func (m *Memory) InitWorkflowStatus(ctx context.Context, status dbos.WorkflowStatus, inputs string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.statuses[status.WorkflowUUID]; !ok {
		now := time.Now().UnixMilli()
		status.Status = dbos.StatusPending
		status.CreatedAt = now
		status.UpdatedAt = now
		m.statuses[status.WorkflowUUID] = status
	}
	if existing, ok := m.inputs[status.WorkflowUUID]; ok {
		return existing, nil
	}
	m.inputs[status.WorkflowUUID] = inputs
	return inputs, nil
}

func (m *Memory) CheckWorkflowOutput(ctx context.Context, workflowUUID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[workflowUUID]
	if !ok {
		return "", false, nil
	}
	switch s.Status {
	case dbos.StatusSuccess:
		return s.Output, true, nil
	case dbos.StatusError:
		return "", true, &memoryRecordedError{msg: s.Error}
	default:
		return "", false, nil
	}
}

type memoryRecordedError struct{ msg string }

func (e *memoryRecordedError) Error() string { return "dbos: recorded workflow error: " + e.msg }

func (m *Memory) BufferWorkflowStatus(status dbos.WorkflowStatus) {
	// The fake commits buffered writes synchronously; buffering is an
	// optimization the Postgres backend needs and the fake does not.
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.statuses[status.WorkflowUUID]
	if err := validateStatusTransition(existing.Status, status.Status); err != nil {
		return
	}
	existing.Status = status.Status
	existing.Output = status.Output
	existing.UpdatedAt = time.Now().UnixMilli()
	m.statuses[status.WorkflowUUID] = existing
	m.dispatcher.publish(status.WorkflowUUID + "::__status__")
}

func (m *Memory) FlushWorkflowStatusBuffer(ctx context.Context) error { return nil }

func (m *Memory) RecordWorkflowError(ctx context.Context, workflowUUID string, errJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.statuses[workflowUUID]
	if existing.Status.IsTerminal() {
		return nil
	}
	existing.Status = dbos.StatusError
	existing.Error = errJSON
	existing.UpdatedAt = time.Now().UnixMilli()
	m.statuses[workflowUUID] = existing
	m.dispatcher.publish(workflowUUID + "::__status__")
	return nil
}

func (m *Memory) CancelWorkflow(ctx context.Context, workflowUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.statuses[workflowUUID]
	if !ok || existing.Status.IsTerminal() {
		return nil
	}
	existing.Status = dbos.StatusCancelled
	existing.RecoveryAttempts = 0
	existing.UpdatedAt = time.Now().UnixMilli()
	m.statuses[workflowUUID] = existing
	m.dispatcher.publish(workflowUUID + "::__status__")
	return nil
}

func (m *Memory) CheckOperationOutput(ctx context.Context, workflowUUID string, functionID int) (dbos.OperationOutput, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, ok := m.outputs[opKey(workflowUUID, functionID)]
	return out, ok, nil
}

func (m *Memory) RecordOperationOutput(ctx context.Context, out dbos.OperationOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := opKey(out.WorkflowUUID, out.FunctionID)
	if _, exists := m.outputs[key]; exists {
		return &dbos.WorkflowConflict{WorkflowUUID: out.WorkflowUUID, FunctionID: out.FunctionID}
	}
	out.CreatedAt = time.Now().UnixMilli()
	m.outputs[key] = out
	return nil
}

func (m *Memory) RecordOperationError(ctx context.Context, workflowUUID string, functionID int, errJSON string) error {
	return m.RecordOperationOutput(ctx, dbos.OperationOutput{WorkflowUUID: workflowUUID, FunctionID: functionID, Error: errJSON})
}

func (m *Memory) Send(ctx context.Context, senderUUID string, functionID int, destinationUUID, message, topic string) error {
	if topic == "" {
		topic = dbos.NullTopic
	}
	m.mu.Lock()
	key := opKey(senderUUID, functionID)
	if _, exists := m.outputs[key]; exists {
		m.mu.Unlock()
		return &dbos.WorkflowConflict{WorkflowUUID: senderUUID, FunctionID: functionID}
	}
	m.seq++
	m.notifs = append(m.notifs, notificationRow{
		destinationUUID: destinationUUID, topic: topic, message: message,
		createdAt: time.Now(), seq: m.seq,
	})
	m.outputs[key] = dbos.OperationOutput{WorkflowUUID: senderUUID, FunctionID: functionID, Output: message, CreatedAt: time.Now().UnixMilli()}
	m.mu.Unlock()

	m.dispatcher.publish(destinationUUID + "::" + topic)
	return nil
}

func (m *Memory) Recv(ctx context.Context, receiverUUID string, functionID int, topic string, timeout time.Duration) (string, bool, error) {
	if topic == "" {
		topic = dbos.NullTopic
	}
	if out, found, _ := m.CheckOperationOutput(ctx, receiverUUID, functionID); found {
		return out.Output, false, nil
	}

	deadline := time.Now().Add(timeout)
	dispatchKey := receiverUUID + "::" + topic
	for {
		if msg, ok := m.dequeue(receiverUUID, functionID, topic); ok {
			return msg, false, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			_ = m.RecordOperationOutput(ctx, dbos.OperationOutput{WorkflowUUID: receiverUUID, FunctionID: functionID})
			return "", true, nil
		}
		ch, unsubscribe := m.dispatcher.subscribe(dispatchKey)
		select {
		case <-ctx.Done():
			unsubscribe()
			return "", false, ctx.Err()
		case <-ch:
			unsubscribe()
		case <-time.After(minDuration(remaining, 50 * time.Millisecond)):
			unsubscribe()
		}
	}
}

func (m *Memory) dequeue(receiverUUID string, functionID int, topic string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	var best notificationRow
	for i, n := range m.notifs {
		if n.destinationUUID != receiverUUID || n.topic != topic {
			continue
		}
		if idx == -1 || n.seq < best.seq {
			idx, best = i, n
		}
	}
	if idx == -1 {
		return "", false
	}
	m.notifs = append(m.notifs[:idx], m.notifs[idx+1:]...)

	key := opKey(receiverUUID, functionID)
	m.outputs[key] = dbos.OperationOutput{WorkflowUUID: receiverUUID, FunctionID: functionID, Output: best.message, CreatedAt: time.Now().UnixMilli()}
	return best.message, true
}

func (m *Memory) SetEvent(ctx context.Context, workflowUUID string, functionID int, key, value string) error {
	m.mu.Lock()
	eventKey := workflowUUID + "::" + key
	if _, exists := m.events[eventKey]; exists {
		m.mu.Unlock()
		return &dbos.DuplicateWorkflowEvent{WorkflowUUID: workflowUUID, Key: key}
	}
	m.events[eventKey] = value
	m.outputs[opKey(workflowUUID, functionID)] = dbos.OperationOutput{WorkflowUUID: workflowUUID, FunctionID: functionID, Output: value, CreatedAt: time.Now().UnixMilli()}
	m.mu.Unlock()

	m.dispatcher.publish(eventKey)
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, callerUUID string, functionID int, targetUUID, key string, timeout time.Duration) (string, bool, error) {
	if out, found, _ := m.CheckOperationOutput(ctx, callerUUID, functionID); found {
		return out.Output, false, nil
	}

	deadline := time.Now().Add(timeout)
	eventKey := targetUUID + "::" + key
	for {
		m.mu.Lock()
		value, ok := m.events[eventKey]
		m.mu.Unlock()
		if ok {
			_ = m.RecordOperationOutput(ctx, dbos.OperationOutput{WorkflowUUID: callerUUID, FunctionID: functionID, Output: value})
			return value, false, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			_ = m.RecordOperationOutput(ctx, dbos.OperationOutput{WorkflowUUID: callerUUID, FunctionID: functionID})
			return "", true, nil
		}
		ch, unsubscribe := m.dispatcher.subscribe(eventKey)
		select {
		case <-ctx.Done():
			unsubscribe()
			return "", false, ctx.Err()
		case <-ch:
			unsubscribe()
		case <-time.After(minDuration(remaining, 50 * time.Millisecond)):
			unsubscribe()
		}
	}
}

func (m *Memory) GetPendingWorkflows(ctx context.Context, executorID, applicationVersion string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for uuid, s := range m.statuses {
		if s.Status != dbos.StatusPending || s.ExecutorID != executorID {
			continue
		}
		if applicationVersion != "" && s.ApplicationVersion != applicationVersion {
			continue
		}
		out = append(out, uuid)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) GetWorkflowStatus(ctx context.Context, workflowUUID string) (dbos.WorkflowStatus, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[workflowUUID]
	return s, ok, nil
}

func (m *Memory) GetWorkflowInputs(ctx context.Context, workflowUUID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.inputs[workflowUUID]
	return s, ok, nil
}

func (m *Memory) GetWorkflowResult(ctx context.Context, workflowUUID string) (dbos.WorkflowStatus, error) {
	ch, unsubscribe := m.dispatcher.subscribe(workflowUUID + "::__status__")
	defer unsubscribe()
	for {
		s, ok, _ := m.GetWorkflowStatus(ctx, workflowUUID)
		if ok && s.Status.IsTerminal() {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return dbos.WorkflowStatus{}, ctx.Err()
		case <-ch:
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (m *Memory) GetWorkflows(ctx context.Context, filter dbos.WorkflowFilter) ([]dbos.WorkflowStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dbos.WorkflowStatus
	for _, s := range m.statuses {
		if filter.Name != "" && s.Name != filter.Name {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.AuthenticatedUser != "" && s.AuthenticatedUser != filter.AuthenticatedUser {
			continue
		}
		if filter.ApplicationVersion != "" && s.ApplicationVersion != filter.ApplicationVersion {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) IncrementRecoveryAttempts(ctx context.Context, workflowUUID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.statuses[workflowUUID]
	s.RecoveryAttempts++
	s.UpdatedAt = time.Now().UnixMilli()
	m.statuses[workflowUUID] = s
	return s.RecoveryAttempts, nil
}

func (m *Memory) MarkRetriesExceeded(ctx context.Context, workflowUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.statuses[workflowUUID]
	s.Status = dbos.StatusRetriesExceeded
	s.UpdatedAt = time.Now().UnixMilli()
	m.statuses[workflowUUID] = s
	m.dispatcher.publish(workflowUUID + "::__status__")
	return nil
}

func (m *Memory) AcquireRecoveryLock(ctx context.Context, executorID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if expiry, ok := m.locks[executorID]; ok && expiry.After(now) {
		return false, nil
	}
	m.locks[executorID] = now.Add(ttl)
	return true, nil
}

func (m *Memory) ReleaseRecoveryLock(ctx context.Context, executorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, executorID)
	return nil
}
