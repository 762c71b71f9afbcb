package sysdb

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/hanzoai/dbosgo/internal/logger"
)

// rollbacker is the minimal surface rollbackTx needs; *sql.Tx satisfies it.
type rollbacker interface {
	Rollback() error
}

// rollbackTx is a defer-friendly rollback helper: sql.ErrTxDone means the
// transaction was already committed and is not worth logging.
func rollbackTx(tx rollbacker, context string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Logger.Warn().Err(err).Str("context", context).Msg("sysdb: rollback failed")
	}
}

// isRetryablePostgresError reports whether err is a transient PostgreSQL
// failure the caller should retry: serialization_failure (40001),
// connection_exception (08xxx), or deadlock_detected (40P01).
func isRetryablePostgresError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"sqlstate 40001", "sqlstate 40p01", "sqlstate 08006", "sqlstate 08000", "serialization_failure", "deadlock detected", "connection reset", "connection refused"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
