package sysdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/hanzoai/dbosgo/internal/logger"
	"github.com/hanzoai/dbosgo/pkg/dbos"
)

// Postgres is the production SystemDatabase backend: a pooled *sqlx.DB for
// ordinary reads/writes, and one dedicated pgx.Conn holding LISTEN for the
// notification channel (§4.3), matching the "single long-lived listening
// connection" requirement in §5.
type Postgres struct {
	db  *sqlx.DB
	dsn string

	dispatcher *dispatcher

	listenConn *pgx.Conn
	listenDone chan struct{}

	bufMu        sync.Mutex
	statusBuffer map[string]dbos.WorkflowStatus

	flushTicker *time.Ticker
	flushDone   chan struct{}

	// FlushInterval controls how often BufferWorkflowStatus entries are
	// committed; defaults to 1s if unset.
	FlushInterval time.Duration
	// Postgres does not enforce a recovery-attempt limit: the Executor
	// compares the count returned by IncrementRecoveryAttempts with its
	// ExecutorConfig.MaxRecoveryAttempts (default 50).
}

// NewPostgres opens the SDB connection pool. Call Init to apply the schema
// and start background tasks before using the database.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sysdb: connect: %w", err)
	}
	return &Postgres{
		db:           db,
		dsn:          dsn,
		dispatcher:   newDispatcher(),
		statusBuffer: make(map[string]dbos.WorkflowStatus),
	}, nil
}

func (p *Postgres) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sysdb: schema statement failed: %w", err)
		}
	}

	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("sysdb: listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN dbos_notifications_channel"); err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("sysdb: LISTEN failed: %w", err)
	}
	p.listenConn = conn
	p.listenDone = make(chan struct{})
	go p.listenLoop()

	interval := p.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	p.flushTicker = time.NewTicker(interval)
	p.flushDone = make(chan struct{})
	go p.flushLoop()

	return nil
}

// ApplySchema runs the idempotent CREATE-IF-NOT-EXISTS schema statements
// without starting the listener or flush ticker; used by `dbos migrate` to
// bring a database up to date outside of a running Executor.
func (p *Postgres) ApplySchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sysdb: schema statement failed: %w", err)
		}
	}
	return nil
}

// DropSchema drops the entire dbos schema; used by `dbos rollback`.
func (p *Postgres) DropSchema(ctx context.Context) error {
	for _, stmt := range rollbackStatements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sysdb: rollback statement failed: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Destroy(ctx context.Context) error {
	if p.flushTicker != nil {
		p.flushTicker.Stop()
		close(p.flushDone)
		_ = p.FlushWorkflowStatusBuffer(ctx)
	}
	if p.listenConn != nil {
		close(p.listenDone)
		_ = p.listenConn.Close(ctx)
	}
	return p.db.Close()
}

func (p *Postgres) listenLoop() {
	ctx := context.Background()
	for {
		select {
		case <-p.listenDone:
			return
		default:
		}
		notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		n, err := p.listenConn.WaitForNotification(notifyCtx)
		cancel()
		if err != nil {
			select {
			case <-p.listenDone:
				return
			default:
			}
			continue // timeout or transient error; loop and re-check done
		}
		p.dispatcher.publish(n.Payload)
	}
}

func (p *Postgres) flushLoop() {
	for {
		select {
		case <-p.flushDone:
			return
		case <-p.flushTicker.C:
			if err := p.FlushWorkflowStatusBuffer(context.Background()); err != nil {
				logger.Logger.Warn().Err(err).Msg("sysdb: periodic status flush failed")
			}
		}
	}
}

func (p *Postgres) Subscribe(key string) (<-chan struct{}, func()) {
	return p.dispatcher.subscribe(key)
}

// --- Workflow status & inputs -------------------------------------------------

func (p *Postgres) InitWorkflowStatus(ctx context.Context, status dbos.WorkflowStatus, inputs string) (string, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer rollbackTx(tx, "InitWorkflowStatus")

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO dbos.workflow_status
			(workflow_uuid, status, name, class_name, config_name, authenticated_user,
			 assumed_role, authenticated_roles, request, executor_id, application_version,
			 created_at, updated_at, recovery_attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (workflow_uuid) DO NOTHING`),
		status.WorkflowUUID, dbos.StatusPending, status.Name, status.ClassName, status.ConfigName,
		status.AuthenticatedUser, status.AssumedRole, status.AuthenticatedRoles, status.Request,
		status.ExecutorID, status.ApplicationVersion, now, now)
	if err != nil {
		return "", fmt.Errorf("sysdb: insert workflow_status: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO dbos.workflow_inputs (workflow_uuid, inputs) VALUES (?, ?)
		ON CONFLICT (workflow_uuid) DO NOTHING`), status.WorkflowUUID, inputs)
	if err != nil {
		return "", fmt.Errorf("sysdb: insert workflow_inputs: %w", err)
	}

	var committed string
	if err := tx.GetContext(ctx, &committed, tx.Rebind(
		`SELECT inputs FROM dbos.workflow_inputs WHERE workflow_uuid = ?`), status.WorkflowUUID); err != nil {
		return "", fmt.Errorf("sysdb: read committed inputs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return committed, nil
}

func (p *Postgres) CheckWorkflowOutput(ctx context.Context, workflowUUID string) (string, bool, error) {
	status, ok, err := p.GetWorkflowStatus(ctx, workflowUUID)
	if err != nil || !ok {
		return "", false, err
	}
	switch status.Status {
	case dbos.StatusSuccess:
		return status.Output, true, nil
	case dbos.StatusError:
		return "", true, fmt.Errorf("dbos: workflow %s recorded error: %s", workflowUUID, status.Error)
	default:
		return "", false, nil
	}
}

func (p *Postgres) BufferWorkflowStatus(status dbos.WorkflowStatus) {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	status.UpdatedAt = time.Now().UnixMilli()
	p.statusBuffer[status.WorkflowUUID] = status
}

func (p *Postgres) FlushWorkflowStatusBuffer(ctx context.Context) error {
	p.bufMu.Lock()
	if len(p.statusBuffer) == 0 {
		p.bufMu.Unlock()
		return nil
	}
	batch := p.statusBuffer
	p.statusBuffer = make(map[string]dbos.WorkflowStatus, len(batch))
	p.bufMu.Unlock()

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := p.commitStatusBatch(ctx, batch); err != nil {
			lastErr = err
			if isRetryablePostgresError(err) {
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("sysdb: flush status buffer exhausted retries: %w", lastErr)
}

func (p *Postgres) commitStatusBatch(ctx context.Context, batch map[string]dbos.WorkflowStatus) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackTx(tx, "commitStatusBatch")

	for _, s := range batch {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE dbos.workflow_status
			SET status = ?, output = ?, updated_at = ?
			WHERE workflow_uuid = ? AND status = ?`),
			s.Status, s.Output, s.UpdatedAt, s.WorkflowUUID, dbos.StatusPending)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) RecordWorkflowError(ctx context.Context, workflowUUID string, errJSON string) error {
	result, err := p.db.ExecContext(ctx, p.db.Rebind(`
		UPDATE dbos.workflow_status
		SET status = ?, error = ?, updated_at = ?
		WHERE workflow_uuid = ? AND status = ?`),
		dbos.StatusError, errJSON, time.Now().UnixMilli(), workflowUUID, dbos.StatusPending)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		logger.Logger.Debug().Str("workflow_uuid", workflowUUID).Msg("sysdb: error write ignored, status already terminal")
	}
	p.dispatcher.publish(workflowUUID + "::__status__")
	return nil
}

func (p *Postgres) CancelWorkflow(ctx context.Context, workflowUUID string) error {
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`
		UPDATE dbos.workflow_status
		SET status = ?, recovery_attempts = 0, updated_at = ?
		WHERE workflow_uuid = ? AND status = ?`),
		dbos.StatusCancelled, time.Now().UnixMilli(), workflowUUID, dbos.StatusPending)
	if err != nil {
		return err
	}
	p.dispatcher.publish(workflowUUID + "::__status__")
	return nil
}

func (p *Postgres) GetWorkflowStatus(ctx context.Context, workflowUUID string) (dbos.WorkflowStatus, bool, error) {
	var row workflowStatusRow
	err := p.db.GetContext(ctx, &row, p.db.Rebind(`
		SELECT workflow_uuid, status, name, class_name, config_name, authenticated_user,
			assumed_role, authenticated_roles, request, output, error, executor_id,
			application_version, created_at, updated_at, recovery_attempts
		FROM dbos.workflow_status WHERE workflow_uuid = ?`), workflowUUID)
	if err == sql.ErrNoRows {
		return dbos.WorkflowStatus{}, false, nil
	}
	if err != nil {
		return dbos.WorkflowStatus{}, false, err
	}
	return row.toStatus(), true, nil
}

func (p *Postgres) GetWorkflowInputs(ctx context.Context, workflowUUID string) (string, bool, error) {
	var inputs string
	err := p.db.GetContext(ctx, &inputs, p.db.Rebind(
		`SELECT inputs FROM dbos.workflow_inputs WHERE workflow_uuid = ?`), workflowUUID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return inputs, err == nil, err
}

func (p *Postgres) GetWorkflowResult(ctx context.Context, workflowUUID string) (dbos.WorkflowStatus, error) {
	ch, unsubscribe := p.Subscribe(workflowUUID + "::__status__")
	defer unsubscribe()

	for {
		status, ok, err := p.GetWorkflowStatus(ctx, workflowUUID)
		if err != nil {
			return dbos.WorkflowStatus{}, err
		}
		if ok && status.Status.IsTerminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return dbos.WorkflowStatus{}, ctx.Err()
		case <-ch:
		case <-time.After(time.Second):
		}
	}
}

func (p *Postgres) GetPendingWorkflows(ctx context.Context, executorID, applicationVersion string) ([]string, error) {
	query := `SELECT workflow_uuid FROM dbos.workflow_status WHERE status = ? AND executor_id = ?`
	args := []interface{}{dbos.StatusPending, executorID}
	if applicationVersion != "" {
		query += ` AND application_version = ?`
		args = append(args, applicationVersion)
	}
	var uuids []string
	if err := p.db.SelectContext(ctx, &uuids, p.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return uuids, nil
}

func (p *Postgres) GetWorkflows(ctx context.Context, filter dbos.WorkflowFilter) ([]dbos.WorkflowStatus, error) {
	query := `SELECT workflow_uuid, status, name, class_name, config_name, authenticated_user,
		assumed_role, authenticated_roles, request, output, error, executor_id,
		application_version, created_at, updated_at, recovery_attempts
		FROM dbos.workflow_status WHERE 1=1`
	var args []interface{}
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.AuthenticatedUser != "" {
		query += ` AND authenticated_user = ?`
		args = append(args, filter.AuthenticatedUser)
	}
	if filter.ApplicationVersion != "" {
		query += ` AND application_version = ?`
		args = append(args, filter.ApplicationVersion)
	}
	if !filter.StartTime.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.StartTime.UnixMilli())
	}
	if !filter.EndTime.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, filter.EndTime.UnixMilli())
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	var rows []workflowStatusRow
	if err := p.db.SelectContext(ctx, &rows, p.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]dbos.WorkflowStatus, len(rows))
	for i, r := range rows {
		out[i] = r.toStatus()
	}
	return out, nil
}

func (p *Postgres) IncrementRecoveryAttempts(ctx context.Context, workflowUUID string) (int64, error) {
	var attempts int64
	err := p.db.GetContext(ctx, &attempts, p.db.Rebind(`
		UPDATE dbos.workflow_status SET recovery_attempts = recovery_attempts + 1, updated_at = ?
		WHERE workflow_uuid = ? RETURNING recovery_attempts`),
		time.Now().UnixMilli(), workflowUUID)
	return attempts, err
}

func (p *Postgres) MarkRetriesExceeded(ctx context.Context, workflowUUID string) error {
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`
		UPDATE dbos.workflow_status SET status = ?, updated_at = ?
		WHERE workflow_uuid = ? AND status = ?`),
		dbos.StatusRetriesExceeded, time.Now().UnixMilli(), workflowUUID, dbos.StatusPending)
	if err == nil {
		p.dispatcher.publish(workflowUUID + "::__status__")
	}
	return err
}

// --- Operation outputs ---------------------------------------------------

func (p *Postgres) CheckOperationOutput(ctx context.Context, workflowUUID string, functionID int) (dbos.OperationOutput, bool, error) {
	var row dbos.OperationOutput
	err := p.db.GetContext(ctx, &row, p.db.Rebind(`
		SELECT workflow_uuid, function_id, output, error, txn_snapshot, txn_id, created_at
		FROM dbos.operation_outputs WHERE workflow_uuid = ? AND function_id = ?`),
		workflowUUID, functionID)
	if err == sql.ErrNoRows {
		return dbos.OperationOutput{}, false, nil
	}
	return row, err == nil, err
}

func (p *Postgres) RecordOperationOutput(ctx context.Context, out dbos.OperationOutput) error {
	out.CreatedAt = time.Now().UnixMilli()
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO dbos.operation_outputs (workflow_uuid, function_id, output, txn_snapshot, txn_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		out.WorkflowUUID, out.FunctionID, out.Output, out.TxnSnapshot, out.TxnID, out.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return &dbos.WorkflowConflict{WorkflowUUID: out.WorkflowUUID, FunctionID: out.FunctionID}
	}
	return err
}

func (p *Postgres) RecordOperationError(ctx context.Context, workflowUUID string, functionID int, errJSON string) error {
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO dbos.operation_outputs (workflow_uuid, function_id, error, created_at)
		VALUES (?, ?, ?, ?)`),
		workflowUUID, functionID, errJSON, time.Now().UnixMilli())
	if err != nil && isUniqueViolation(err) {
		return &dbos.WorkflowConflict{WorkflowUUID: workflowUUID, FunctionID: functionID}
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

// --- Notifications & events ------------------------------------------------

func (p *Postgres) Send(ctx context.Context, senderUUID string, functionID int, destinationUUID, message, topic string) error {
	if topic == "" {
		topic = dbos.NullTopic
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackTx(tx, "Send")

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO dbos.notifications (destination_uuid, topic, message) VALUES (?, ?, ?)`),
		destinationUUID, topic, message); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO dbos.operation_outputs (workflow_uuid, function_id, output, created_at)
		VALUES (?, ?, ?, ?)`), senderUUID, functionID, message, time.Now().UnixMilli()); err != nil {
		if isUniqueViolation(err) {
			return &dbos.WorkflowConflict{WorkflowUUID: senderUUID, FunctionID: functionID}
		}
		return err
	}
	return tx.Commit()
}

func (p *Postgres) Recv(ctx context.Context, receiverUUID string, functionID int, topic string, timeout time.Duration) (string, bool, error) {
	if topic == "" {
		topic = dbos.NullTopic
	}
	if out, found, err := p.CheckOperationOutput(ctx, receiverUUID, functionID); err != nil {
		return "", false, err
	} else if found {
		return out.Output, out.Output == "" && out.Error == "", nil
	}

	deadline := time.Now().Add(timeout)
	key := receiverUUID + "::" + topic

	for {
		ch, unsubscribe := p.Subscribe(key)
		message, found, err := p.dequeueNotification(ctx, receiverUUID, functionID, destinationDequeueArgs{uuid: receiverUUID, topic: topic})
		if err != nil {
			unsubscribe()
			return "", false, err
		}
		if found {
			unsubscribe()
			return message, false, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			unsubscribe()
			_ = p.RecordOperationOutput(ctx, dbos.OperationOutput{WorkflowUUID: receiverUUID, FunctionID: functionID, Output: ""})
			return "", true, nil
		}
		select {
		case <-ctx.Done():
			unsubscribe()
			return "", false, ctx.Err()
		case <-ch:
			unsubscribe()
		case <-time.After(minDuration(remaining, 2*time.Second)):
			unsubscribe()
		}
	}
}

type destinationDequeueArgs struct {
	uuid  string
	topic string
}

// dequeueNotification atomically deletes the oldest queued row for
// (receiverUUID, topic) and records it as the OAOO output, in one
// transaction, matching the delete-on-receive FIFO contract in §5.
func (p *Postgres) dequeueNotification(ctx context.Context, receiverUUID string, functionID int, args destinationDequeueArgs) (string, bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer rollbackTx(tx, "dequeueNotification")

	var message string
	row := tx.QueryRowContext(ctx, tx.Rebind(`
		SELECT message FROM dbos.notifications
		WHERE destination_uuid = ? AND topic = ?
		ORDER BY created_at ASC LIMIT 1`), args.uuid, args.topic)
	if scanErr := row.Scan(&message); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, scanErr
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM dbos.notifications WHERE destination_uuid = ? AND topic = ? AND created_at = (
			SELECT created_at FROM dbos.notifications WHERE destination_uuid = ? AND topic = ? ORDER BY created_at ASC LIMIT 1
		)`), args.uuid, args.topic, args.uuid, args.topic); err != nil {
		return "", false, err
	}

	if err := p.recordOperationOutputTx(ctx, tx, receiverUUID, functionID, message); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return message, true, nil
}

func (p *Postgres) recordOperationOutputTx(ctx context.Context, tx *sqlx.Tx, workflowUUID string, functionID int, output string) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO dbos.operation_outputs (workflow_uuid, function_id, output, created_at)
		VALUES (?, ?, ?, ?)`), workflowUUID, functionID, output, time.Now().UnixMilli())
	if err != nil && isUniqueViolation(err) {
		return &dbos.WorkflowConflict{WorkflowUUID: workflowUUID, FunctionID: functionID}
	}
	return err
}

func (p *Postgres) SetEvent(ctx context.Context, workflowUUID string, functionID int, key, value string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackTx(tx, "SetEvent")

	var exists int
	err = tx.GetContext(ctx, &exists, tx.Rebind(
		`SELECT count(*) FROM dbos.workflow_events WHERE workflow_uuid = ? AND key = ?`), workflowUUID, key)
	if err != nil {
		return err
	}
	if exists > 0 {
		return &dbos.DuplicateWorkflowEvent{WorkflowUUID: workflowUUID, Key: key}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO dbos.workflow_events (workflow_uuid, key, value) VALUES (?, ?, ?)`),
		workflowUUID, key, value); err != nil {
		return err
	}
	if err := p.recordOperationOutputTx(ctx, tx, workflowUUID, functionID, value); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) GetEvent(ctx context.Context, callerUUID string, functionID int, targetUUID, key string, timeout time.Duration) (string, bool, error) {
	if out, found, err := p.CheckOperationOutput(ctx, callerUUID, functionID); err != nil {
		return "", false, err
	} else if found {
		return out.Output, false, nil
	}

	deadline := time.Now().Add(timeout)
	dispatchKey := targetUUID + "::" + key

	for {
		var value string
		err := p.db.GetContext(ctx, &value, p.db.Rebind(
			`SELECT value FROM dbos.workflow_events WHERE workflow_uuid = ? AND key = ?`), targetUUID, key)
		if err == nil {
			if recErr := p.RecordOperationOutput(ctx, dbos.OperationOutput{WorkflowUUID: callerUUID, FunctionID: functionID, Output: value}); recErr != nil {
				return "", false, recErr
			}
			return value, false, nil
		}
		if err != sql.ErrNoRows {
			return "", false, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			_ = p.RecordOperationOutput(ctx, dbos.OperationOutput{WorkflowUUID: callerUUID, FunctionID: functionID, Output: ""})
			return "", true, nil
		}
		ch, unsubscribe := p.Subscribe(dispatchKey)
		select {
		case <-ctx.Done():
			unsubscribe()
			return "", false, ctx.Err()
		case <-ch:
			unsubscribe()
		case <-time.After(minDuration(remaining, 2*time.Second)):
			unsubscribe()
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// workflowStatusRow is the sqlx scan target for dbos.workflow_status.
type workflowStatusRow struct {
	WorkflowUUID       string `db:"workflow_uuid"`
	Status             string `db:"status"`
	Name               string `db:"name"`
	ClassName          string `db:"class_name"`
	ConfigName         string `db:"config_name"`
	AuthenticatedUser  string `db:"authenticated_user"`
	AssumedRole        string `db:"assumed_role"`
	AuthenticatedRoles string `db:"authenticated_roles"`
	Request            string `db:"request"`
	Output             sql.NullString `db:"output"`
	Error              sql.NullString `db:"error"`
	ExecutorID         string `db:"executor_id"`
	ApplicationVersion string `db:"application_version"`
	CreatedAt          int64  `db:"created_at"`
	UpdatedAt          int64  `db:"updated_at"`
	RecoveryAttempts   int64  `db:"recovery_attempts"`
}

func (r workflowStatusRow) toStatus() dbos.WorkflowStatus {
	return dbos.WorkflowStatus{
		WorkflowUUID:       r.WorkflowUUID,
		Status:             dbos.WorkflowStatusValue(r.Status),
		Name:               r.Name,
		ClassName:          r.ClassName,
		ConfigName:         r.ConfigName,
		AuthenticatedUser:  r.AuthenticatedUser,
		AssumedRole:        r.AssumedRole,
		AuthenticatedRoles: r.AuthenticatedRoles,
		Request:            r.Request,
		Output:             r.Output.String,
		Error:              r.Error.String,
		ExecutorID:         r.ExecutorID,
		ApplicationVersion: r.ApplicationVersion,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		RecoveryAttempts:   r.RecoveryAttempts,
	}
}
