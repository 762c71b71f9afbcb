// Package sysdb implements the System Database (§4.3): the durable,
// ordered, concurrency-safe store for workflow status, operation outputs,
// notifications, and workflow events, plus the cross-process notification
// channel that wakes in-process waiters on INSERT.
//
// The dbos.SystemDatabase interface the Executor depends on is defined in
// pkg/dbos, not here, so this package can depend on pkg/dbos's types without
// an import cycle. Postgres is the production backend; Memory is an
// in-memory fake used to unit-test the Executor and Workflow Context
// without a live PostgreSQL instance.
package sysdb

import "github.com/hanzoai/dbosgo/pkg/dbos"

var (
	_ dbos.SystemDatabase = (*Postgres)(nil)
	_ dbos.SystemDatabase = (*Memory)(nil)
)
