// Package operations defines the atomic, independently reversible schema
// changes a migration is composed of, and the emitter that turns an ordered
// change set into them.
//
// Every operation carries full "before" and "after" definitions so its
// reverse can be synthesized without external lookups: CreateTable retains
// the model it created so DeleteTable can restore it, RemoveField retains the
// dropped FieldState so AddField can bring it back, and so on. Reversibility
// is a per-operation contract; the only operations that can refuse are RunSQL
// without reverse SQL and RunGo without a backward function, which report
// Irreversible so tooling can warn before applying.
//
// Operations also know how to apply themselves to a state.ProjectState. That
// replay path rebuilds the "old" snapshot from recorded migrations and backs
// the reversibility tests; it never touches a database.
package operations
