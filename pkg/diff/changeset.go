package diff

import "github.com/platinummonkey/automigrate/pkg/state"

// FieldChange is a field present in both snapshots whose definition differs.
// Both states are carried so downstream stages never need to look anything up.
type FieldChange struct {
	Name string
	Old  *state.FieldState
	New  *state.FieldState
}

// RelationChange is a relationship field whose target or referential actions
// changed between snapshots.
type RelationChange struct {
	FieldName string
	Old       *state.Relation
	New       *state.Relation
}

// ModelDiff collects the field, index, constraint and relation changes for
// one model present in both snapshots. All slices are sorted by name.
type ModelDiff struct {
	Key state.ModelKey

	AddedFields    []*state.FieldState
	RemovedFields  []*state.FieldState
	ModifiedFields []FieldChange

	AddedIndexes   []state.IndexDefinition
	RemovedIndexes []state.IndexDefinition

	AddedConstraints   []state.ConstraintDefinition
	RemovedConstraints []state.ConstraintDefinition

	RelationChanges []RelationChange
}

// Empty reports whether the model diff carries no changes.
func (d *ModelDiff) Empty() bool {
	return len(d.AddedFields) == 0 &&
		len(d.RemovedFields) == 0 &&
		len(d.ModifiedFields) == 0 &&
		len(d.AddedIndexes) == 0 &&
		len(d.RemovedIndexes) == 0 &&
		len(d.AddedConstraints) == 0 &&
		len(d.RemovedConstraints) == 0 &&
		len(d.RelationChanges) == 0
}

// RawChangeSet is the symmetric set-difference of two project states before
// rename resolution. Added and removed models carry their full ModelState so
// later stages (rename pairing, operation emission) are self-contained.
type RawChangeSet struct {
	AddedModels   []*state.ModelState
	RemovedModels []*state.ModelState
	ModelDiffs    []*ModelDiff

	// AddedManyToMany and RemovedManyToMany are junction-table entries present
	// in only one snapshot. An entry whose definition changed appears in both.
	AddedManyToMany   []state.ManyToManyMetadata
	RemovedManyToMany []state.ManyToManyMetadata
}

// Empty reports whether the change set carries no changes at all.
func (c *RawChangeSet) Empty() bool {
	return len(c.AddedModels) == 0 && len(c.RemovedModels) == 0 && len(c.ModelDiffs) == 0 &&
		len(c.AddedManyToMany) == 0 && len(c.RemovedManyToMany) == 0
}
