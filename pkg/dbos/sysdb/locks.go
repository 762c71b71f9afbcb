package sysdb

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AcquireRecoveryLock grounds the advisory-row-lock pattern from the
// teacher's distributed_locks table: an UPSERT that only succeeds when no
// row exists for executorID or the prior row has expired, so at most one
// executor process recovers a given executor_id partition at a time.
func (p *Postgres) AcquireRecoveryLock(ctx context.Context, executorID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	lockID := uuid.NewString()
	expiresAt := time.Now().UTC().Add(ttl)

	result, err := p.db.ExecContext(ctx, p.db.Rebind(`
		INSERT INTO dbos.recovery_locks (executor_id, lock_id, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (executor_id) DO UPDATE SET
			lock_id = EXCLUDED.lock_id,
			expires_at = EXCLUDED.expires_at
		WHERE dbos.recovery_locks.expires_at <= NOW()`),
		executorID, lockID, expiresAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ReleaseRecoveryLock drops the advisory row early so a subsequent recovery
// attempt by the same process does not need to wait out the full TTL.
func (p *Postgres) ReleaseRecoveryLock(ctx context.Context, executorID string) error {
	_, err := p.db.ExecContext(ctx, p.db.Rebind(`DELETE FROM dbos.recovery_locks WHERE executor_id = ?`), executorID)
	return err
}
