// Package executor applies migrations to a live database.
//
// A Dialect renders operations into backend SQL (postgres, mysql, sqlite);
// the Executor plans pending migrations from recorded history, runs them in a
// transaction when the backend supports transactional DDL, and the Recorder
// keeps the history table that makes planning idempotent. Fake mode records a
// migration as applied without executing its SQL, for adopting databases that
// already have the schema.
//
// The executor replays each operation onto an in-memory project state as it
// goes; that replayed state supplies the full table definition SQLite needs
// for its recreate-and-copy alteration strategy.
package executor
