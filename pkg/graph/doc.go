// Package graph orders a resolved change set so every schema change appears
// after the changes it depends on.
//
// Changes are nodes; dependency edges come from two sources. Structural edges
// keep changes to one model coherent (a rename precedes alterations of the
// renamed model). Relation edges keep referential integrity: a table is
// created before tables whose foreign keys reference it, and referencing
// columns are dropped before the referenced table is.
//
// Ordering is Kahn's algorithm with a deterministic tie-break: among ready
// nodes, lower change-category rank wins, then app label, then model name,
// then the changed member's name. The same input always yields the same
// order.
//
// Mutual foreign keys between two created tables form a cycle no ordering can
// satisfy. The grapher breaks such cycles by withholding the foreign key
// columns from the CREATE and emitting deferred constraint additions that run
// after both tables exist. When deferral is disabled the cycle is reported as
// a CircularDependencyError carrying the full path.
package graph
