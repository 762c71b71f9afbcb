package sysdb

// schemaStatements is the bit-exact SDB schema from §6, applied as
// idempotent CREATE-IF-NOT-EXISTS statements — there is no versioned
// migration chain because the schema is fixed, not evolving (SPEC_FULL §6.1).
var schemaStatements = []string{
	`CREATE SCHEMA IF NOT EXISTS dbos`,

	`CREATE TABLE IF NOT EXISTS dbos.workflow_status (
		workflow_uuid       TEXT PRIMARY KEY,
		status              TEXT NOT NULL,
		name                TEXT,
		class_name          TEXT,
		config_name         TEXT,
		authenticated_user  TEXT,
		assumed_role        TEXT,
		authenticated_roles TEXT,
		request             TEXT,
		output              TEXT,
		error               TEXT,
		executor_id         TEXT,
		application_version TEXT,
		created_at          BIGINT,
		updated_at          BIGINT,
		recovery_attempts   BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS workflow_status_executor_idx ON dbos.workflow_status (executor_id, status)`,
	`CREATE INDEX IF NOT EXISTS workflow_status_appversion_idx ON dbos.workflow_status (application_version)`,

	`CREATE TABLE IF NOT EXISTS dbos.workflow_inputs (
		workflow_uuid TEXT PRIMARY KEY REFERENCES dbos.workflow_status(workflow_uuid),
		inputs        TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS dbos.operation_outputs (
		workflow_uuid TEXT NOT NULL,
		function_id   INT NOT NULL,
		output        TEXT,
		error         TEXT,
		txn_snapshot  TEXT,
		txn_id        TEXT,
		created_at    BIGINT,
		PRIMARY KEY (workflow_uuid, function_id)
	)`,

	`CREATE TABLE IF NOT EXISTS dbos.notifications (
		destination_uuid TEXT NOT NULL,
		topic             TEXT NOT NULL,
		message           TEXT,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_dest_topic_idx ON dbos.notifications (destination_uuid, topic, created_at)`,

	`CREATE TABLE IF NOT EXISTS dbos.workflow_events (
		workflow_uuid TEXT NOT NULL,
		key           TEXT NOT NULL,
		value         TEXT,
		PRIMARY KEY (workflow_uuid, key)
	)`,

	`CREATE TABLE IF NOT EXISTS dbos.recovery_locks (
		executor_id TEXT PRIMARY KEY,
		lock_id     TEXT NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL
	)`,

	// Notification trigger: on insert into notifications, publish
	// "<destination_uuid>::<topic>" on the shared channel.
	`CREATE OR REPLACE FUNCTION dbos.notify_notifications() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('dbos_notifications_channel', NEW.destination_uuid || '::' || NEW.topic);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS dbos_notifications_trigger ON dbos.notifications`,
	`CREATE TRIGGER dbos_notifications_trigger AFTER INSERT ON dbos.notifications
		FOR EACH ROW EXECUTE FUNCTION dbos.notify_notifications()`,

	// Event trigger: on insert into workflow_events, publish "<uuid>::<key>".
	`CREATE OR REPLACE FUNCTION dbos.notify_workflow_events() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('dbos_notifications_channel', NEW.workflow_uuid || '::' || NEW.key);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS dbos_workflow_events_trigger ON dbos.workflow_events`,
	`CREATE TRIGGER dbos_workflow_events_trigger AFTER INSERT ON dbos.workflow_events
		FOR EACH ROW EXECUTE FUNCTION dbos.notify_workflow_events()`,
}

// rollbackStatements drops the entire dbos schema; used by `dbos rollback`.
var rollbackStatements = []string{
	`DROP SCHEMA IF EXISTS dbos CASCADE`,
}
