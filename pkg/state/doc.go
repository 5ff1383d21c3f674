// Package state defines the in-memory schema snapshots the migration engine
// operates on.
//
// A ProjectState is the full picture of every declared model at one point in
// migration history. It maps (app label, model name) pairs to ModelState
// values, each of which owns an ordered list of FieldState columns plus index
// and constraint definitions. The "old" state is rebuilt by replaying recorded
// migrations, the "new" state comes from the declared models; the engine only
// ever consumes the finished snapshots.
//
// Snapshots are treated as immutable once handed to the differ: mutating
// helpers like RenameModel operate on a state you own (typically a Clone), and
// Clone performs a deep copy so replayed history can never alias the live
// snapshot.
//
// Validate enforces the structural invariants the rest of the engine relies
// on: unique model keys, identifier-shaped names, at most one primary key per
// model, explicit VarChar lengths, and relation targets that resolve within
// the same ProjectState. Validation failures are typed errors
// (DuplicateModelError, DanglingReferenceError, InvalidFieldError) so callers
// can present precise diagnostics.
package state
