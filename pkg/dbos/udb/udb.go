// Package udb implements the User Database Adapter (§4.4): a uniform
// transactional client over the application's own database. The engine runs
// each @Transaction step inside a UDB transaction that also writes the
// step's OperationOutputs row, so the application's effects and the
// bookkeeping record commit atomically.
package udb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/hanzoai/dbosgo/internal/logger"
	"github.com/hanzoai/dbosgo/pkg/dbos"
)

// UDB is the application database handle the Executor transacts against. The
// production backend is PostgreSQL; sqlite backs local development and unit
// tests (grounded on the teacher's LocalStorage dual sqlite/postgres split).
// gormDB is lazily initialized: most @Transaction bodies use the raw *sqlx.Tx
// handed to them by Transact, but GormDB gives bodies that prefer an ORM a
// handle sharing the same underlying connection pool.
type UDB struct {
	db     *sqlx.DB
	mode   string // "postgres" or "sqlite"
	gormDB *gorm.DB
}

// Open connects to a UDB backend. mode is "postgres" or "sqlite"; driverName
// and dsn are passed to sqlx.Connect verbatim.
func Open(mode, driverName, dsn string) (*UDB, error) {
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("udb: connect: %w", err)
	}
	return &UDB{db: db, mode: mode}, nil
}

// Mode reports "postgres" or "sqlite".
func (u *UDB) Mode() string { return u.mode }

// GormDB returns a *gorm.DB sharing this UDB's connection pool, for
// @Transaction bodies that prefer an ORM over the raw *sqlx.Tx client.
// Grounded on the teacher's LocalStorage.initGormDB dual sqlite/postgres
// dialector selection.
func (u *UDB) GormDB(ctx context.Context) (*gorm.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("udb: context cancelled: %w", err)
	}
	if u.gormDB == nil {
		var dialector gorm.Dialector
		switch u.mode {
		case "postgres":
			dialector = postgres.New(postgres.Config{Conn: u.db.DB})
		default:
			dialector = sqlite.Dialector{Conn: u.db.DB, DriverName: "sqlite3"}
		}
		gormDB, err := gorm.Open(dialector, &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
			NamingStrategy: schema.NamingStrategy{SingularTable: false},
		})
		if err != nil {
			return nil, fmt.Errorf("udb: initialize gorm: %w", err)
		}
		u.gormDB = gormDB
	}
	return u.gormDB.WithContext(ctx), nil
}

var _ dbos.UserDatabase = (*UDB)(nil)

// Close releases the underlying connection pool.
func (u *UDB) Close() error { return u.db.Close() }

// TxFunc is a user transaction body. client is the *sqlx.Tx the body must
// type-assert and use for every statement so its effects and the OAOO
// record co-commit. It is typed `any` here to satisfy dbos.UserDatabase
// without this package's SQL driver type leaking into pkg/dbos.
type TxFunc func(ctx context.Context, client any) (string, error)

// Transact runs body inside one UDB transaction at the requested isolation
// level, matching the contract in §4.4: exposes the client to user code,
// honors ReadOnly, and surfaces serialization failures undecorated so the
// caller (the Executor's Transaction step) can retry the whole step.
// Transact's body parameter is declared with the literal (unnamed) function
// type, matching dbos.UserDatabase's method signature exactly — Go requires
// identical parameter types for interface satisfaction, and a named type
// like TxFunc is not identical to its own underlying type even though a
// TxFunc value is assignable to it. Callers may still pass a TxFunc value.
func (u *UDB) Transact(ctx context.Context, config dbos.StepConfig, body func(ctx context.Context, client any) (string, error)) (string, error) {
	opts := &sql.TxOptions{
		Isolation: isolationLevel(u.mode, config.Isolation),
		ReadOnly:  config.ReadOnly,
	}
	tx, err := u.db.BeginTxx(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("udb: begin: %w", err)
	}

	output, bodyErr := body(ctx, tx)
	if bodyErr != nil {
		rollbackTx(tx, "transaction body error")
		return "", bodyErr
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return output, nil
}

// rollbackTx rolls back tx and logs a warning if the rollback itself fails
// for a reason other than the transaction already being closed. Grounded on
// the teacher's rollbackTx helper (internal/storage/tx_utils.go).
func rollbackTx(tx *sqlx.Tx, context string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Logger.Warn().Err(err).Str("context", context).Msg("udb: transaction rollback failed")
	}
}

// isolationLevel maps the engine's portable Isolation enum onto the
// database/sql constant, falling back to whatever the driver treats as its
// default on backends (like sqlite) that do not support true SERIALIZABLE.
func isolationLevel(mode string, iso dbos.Isolation) sql.IsolationLevel {
	if mode == "sqlite" {
		return sql.LevelDefault
	}
	switch iso {
	case dbos.IsolationReadCommitted:
		return sql.LevelReadCommitted
	case dbos.IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	default:
		return sql.LevelSerializable
	}
}
