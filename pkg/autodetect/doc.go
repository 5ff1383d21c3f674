// Package autodetect is the front door of the detection pipeline: it takes
// two project snapshots and produces one migration, or nothing when the
// snapshots already agree.
//
// The pipeline is validate -> diff -> resolve renames -> order -> emit.
// Failures carry the stage they happened in so callers can tell a malformed
// snapshot from an unbreakable dependency cycle. The first error aborts; a
// partial migration is never returned.
//
// Detection is pure and deterministic: the same pair of snapshots always
// yields the same migration, and running detection on its own output yields
// nothing. The only ambient input is the clock, used for fallback migration
// names and injectable for tests.
package autodetect
