package graph

import (
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/state"
)

// ChangeKind categorizes one schema change. Declaration order is the
// category rank used by the deterministic tie-break: additive structural
// changes first, then in-place changes, then removals.
type ChangeKind int

const (
	KindCreateModel ChangeKind = iota
	KindAddManyToMany
	KindRenameModel
	KindAddField
	KindRenameField
	KindAlterField
	KindAddIndex
	KindAddConstraint
	KindRemoveIndex
	KindRemoveConstraint
	KindRemoveField
	KindRemoveManyToMany
	KindDeleteModel
)

var changeKindNames = []string{
	"create_model", "add_many_to_many", "rename_model", "add_field",
	"rename_field", "alter_field", "add_index", "add_constraint",
	"remove_index", "remove_constraint", "remove_field", "remove_many_to_many",
	"delete_model",
}

func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return fmt.Sprintf("<unknown change kind %d>", int(k))
}

// Change is one node in the dependency graph. Model is the key the change
// applies to; for renames it is the post-rename key. Only the fields relevant
// to Kind are set.
type Change struct {
	Kind  ChangeKind
	Model state.ModelKey

	// NewModel holds the full definition for KindCreateModel. When the create
	// was split to break a foreign key cycle, the withheld columns are absent
	// here and carried by deferred KindAddConstraint changes instead.
	NewModel *state.ModelState
	// OldModel holds the definition dropped by KindDeleteModel.
	OldModel *state.ModelState

	// Field holds the column for KindAddField and KindRemoveField, and the
	// withheld column for deferred KindAddConstraint changes.
	Field *state.FieldState
	// OldField and NewField hold both sides of a KindAlterField, and the two
	// definitions of a KindRenameField.
	OldField *state.FieldState
	NewField *state.FieldState

	// OldName and NewName apply to KindRenameModel and KindRenameField.
	OldName string
	NewName string

	Index      *state.IndexDefinition
	Constraint *state.ConstraintDefinition

	// ManyToMany holds the junction-table entry for KindAddManyToMany and
	// KindRemoveManyToMany; Model is the owning (from) side.
	ManyToMany *state.ManyToManyMetadata

	// Deferred marks constraint additions synthesized by cycle breaking.
	Deferred bool
}

// memberName returns the name of the changed member inside the model, used as
// the final ordering tie-break.
func (c *Change) memberName() string {
	switch {
	case c.Field != nil:
		return c.Field.Name
	case c.NewField != nil:
		return c.NewField.Name
	case c.Index != nil:
		return c.Index.Name
	case c.Constraint != nil:
		return c.Constraint.Name
	case c.ManyToMany != nil:
		return c.ManyToMany.JunctionTable
	case c.NewName != "":
		return c.NewName
	}
	return ""
}

// less is the deterministic ready-queue order: category rank, app, model,
// member name.
func (c *Change) less(o *Change) bool {
	if c.Kind != o.Kind {
		return c.Kind < o.Kind
	}
	if c.Model != o.Model {
		return c.Model.Less(o.Model)
	}
	return c.memberName() < o.memberName()
}

// OrderedChangeSet is the grapher's output: changes in a dependency-respecting
// total order.
type OrderedChangeSet struct {
	Changes []*Change
}

// Empty reports whether there is nothing to do.
func (s *OrderedChangeSet) Empty() bool {
	return len(s.Changes) == 0
}

// CircularDependencyError reports an unresolvable dependency cycle. Cycle
// holds the full path, with the first key repeated at the end.
type CircularDependencyError struct {
	Cycle []state.ModelKey
}

func (e *CircularDependencyError) Error() string {
	path := ""
	for i, key := range e.Cycle {
		if i > 0 {
			path += " -> "
		}
		path += key.String()
	}
	return fmt.Sprintf("circular dependency detected: %s", path)
}
