package operations

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/state"
)

// ErrIrreversible is returned by Reverse on operations that cannot be undone.
var ErrIrreversible = errors.New("operation is irreversible")

// Operation is one atomic schema change.
type Operation interface {
	// Describe returns a stable, human-readable summary. Generated migration
	// output is diffed in code review, so the wording is part of the
	// determinism contract.
	Describe() string
	// Reverse synthesizes the inverse operation, or ErrIrreversible.
	Reverse() (Operation, error)
	// Apply replays the operation onto an in-memory project state.
	Apply(project *state.ProjectState) error
	// Irreversible reports whether Reverse would fail.
	Irreversible() bool
}

// CreateTable creates a new table from a full model definition.
type CreateTable struct {
	Model *state.ModelState
}

func (op *CreateTable) Describe() string {
	return fmt.Sprintf("Create table %s", op.Model.Key())
}

func (op *CreateTable) Reverse() (Operation, error) {
	return &DeleteTable{Model: op.Model}, nil
}

func (op *CreateTable) Apply(project *state.ProjectState) error {
	return project.AddModel(op.Model.Clone())
}

func (op *CreateTable) Irreversible() bool { return false }

// DeleteTable drops a table. The full model is retained so the reverse can
// recreate it.
type DeleteTable struct {
	Model *state.ModelState
}

func (op *DeleteTable) Describe() string {
	return fmt.Sprintf("Delete table %s", op.Model.Key())
}

func (op *DeleteTable) Reverse() (Operation, error) {
	return &CreateTable{Model: op.Model}, nil
}

func (op *DeleteTable) Apply(project *state.ProjectState) error {
	if !project.HasModel(op.Model.Key()) {
		return fmt.Errorf("cannot delete %s: model does not exist", op.Model.Key())
	}
	project.RemoveModel(op.Model.AppLabel, op.Model.Name)
	return nil
}

func (op *DeleteTable) Irreversible() bool { return false }

// RenameTable renames a table, rewriting relations that referenced it.
type RenameTable struct {
	App     string
	OldName string
	NewName string
}

func (op *RenameTable) Describe() string {
	return fmt.Sprintf("Rename table %s.%s to %s", op.App, op.OldName, op.NewName)
}

func (op *RenameTable) Reverse() (Operation, error) {
	return &RenameTable{App: op.App, OldName: op.NewName, NewName: op.OldName}, nil
}

func (op *RenameTable) Apply(project *state.ProjectState) error {
	if project.Model(op.App, op.OldName) == nil {
		return fmt.Errorf("cannot rename %s.%s: model does not exist", op.App, op.OldName)
	}
	project.RenameModel(op.App, op.OldName, op.NewName)
	return nil
}

func (op *RenameTable) Irreversible() bool { return false }

// AddField adds a column to an existing table.
type AddField struct {
	Model state.ModelKey
	Field *state.FieldState
}

func (op *AddField) Describe() string {
	return fmt.Sprintf("Add field %s to %s", op.Field.Name, op.Model)
}

func (op *AddField) Reverse() (Operation, error) {
	return &RemoveField{Model: op.Model, Field: op.Field}, nil
}

func (op *AddField) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot add field to %s: model does not exist", op.Model)
	}
	return model.AddField(op.Field.Clone())
}

func (op *AddField) Irreversible() bool { return false }

// RemoveField drops a column. The dropped FieldState is retained so the
// reverse can restore the definition (though not the data).
type RemoveField struct {
	Model state.ModelKey
	Field *state.FieldState
}

func (op *RemoveField) Describe() string {
	return fmt.Sprintf("Remove field %s from %s", op.Field.Name, op.Model)
}

func (op *RemoveField) Reverse() (Operation, error) {
	return &AddField{Model: op.Model, Field: op.Field}, nil
}

func (op *RemoveField) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot remove field from %s: model does not exist", op.Model)
	}
	if !model.HasField(op.Field.Name) {
		return fmt.Errorf("cannot remove field %s from %s: field does not exist", op.Field.Name, op.Model)
	}
	model.RemoveField(op.Field.Name)
	return nil
}

func (op *RemoveField) Irreversible() bool { return false }

// RenameField renames a column in place.
type RenameField struct {
	Model   state.ModelKey
	OldName string
	NewName string
}

func (op *RenameField) Describe() string {
	return fmt.Sprintf("Rename field %s to %s on %s", op.OldName, op.NewName, op.Model)
}

func (op *RenameField) Reverse() (Operation, error) {
	return &RenameField{Model: op.Model, OldName: op.NewName, NewName: op.OldName}, nil
}

func (op *RenameField) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot rename field on %s: model does not exist", op.Model)
	}
	if !model.HasField(op.OldName) {
		return fmt.Errorf("cannot rename field %s on %s: field does not exist", op.OldName, op.Model)
	}
	model.RenameField(op.OldName, op.NewName)
	return nil
}

func (op *RenameField) Irreversible() bool { return false }

// AlterField changes a column's definition. Both states are carried; when the
// target backend cannot alter in place (SQLite for most alters) the executor
// follows the table-recreation strategy, signalled by RequiresRecreation. The
// emitter only flags the need, it never decides SQL.
type AlterField struct {
	Model state.ModelKey
	Old   *state.FieldState
	New   *state.FieldState
	// RequiresRecreation marks alters that SQLite can only perform by
	// recreating the table (copy data to a new table, drop, rename back).
	RequiresRecreation bool
}

func (op *AlterField) Describe() string {
	return fmt.Sprintf("Alter field %s on %s", op.New.Name, op.Model)
}

func (op *AlterField) Reverse() (Operation, error) {
	return &AlterField{
		Model:              op.Model,
		Old:                op.New,
		New:                op.Old,
		RequiresRecreation: op.RequiresRecreation,
	}, nil
}

func (op *AlterField) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot alter field on %s: model does not exist", op.Model)
	}
	if !model.HasField(op.New.Name) {
		return fmt.Errorf("cannot alter field %s on %s: field does not exist", op.New.Name, op.Model)
	}
	model.ReplaceField(op.New.Name, op.New.Clone())
	return nil
}

func (op *AlterField) Irreversible() bool { return false }

// AddIndex creates an index.
type AddIndex struct {
	Model state.ModelKey
	Index state.IndexDefinition
}

func (op *AddIndex) Describe() string {
	return fmt.Sprintf("Add index %s on %s", op.Index.Name, op.Model)
}

func (op *AddIndex) Reverse() (Operation, error) {
	return &RemoveIndex{Model: op.Model, Index: op.Index}, nil
}

func (op *AddIndex) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot add index to %s: model does not exist", op.Model)
	}
	if _, exists := model.Index(op.Index.Name); exists {
		return fmt.Errorf("cannot add index %s to %s: index already exists", op.Index.Name, op.Model)
	}
	model.Indexes = append(model.Indexes, op.Index)
	return nil
}

func (op *AddIndex) Irreversible() bool { return false }

// RemoveIndex drops an index. The definition is retained for reversal.
type RemoveIndex struct {
	Model state.ModelKey
	Index state.IndexDefinition
}

func (op *RemoveIndex) Describe() string {
	return fmt.Sprintf("Remove index %s from %s", op.Index.Name, op.Model)
}

func (op *RemoveIndex) Reverse() (Operation, error) {
	return &AddIndex{Model: op.Model, Index: op.Index}, nil
}

func (op *RemoveIndex) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot remove index from %s: model does not exist", op.Model)
	}
	if _, exists := model.Index(op.Index.Name); !exists {
		return fmt.Errorf("cannot remove index %s from %s: index does not exist", op.Index.Name, op.Model)
	}
	model.RemoveIndex(op.Index.Name)
	return nil
}

func (op *RemoveIndex) Irreversible() bool { return false }

// AddConstraint adds a table constraint. For deferred foreign keys (cycle
// breaking) Column carries the FK column the constraint attaches to, added in
// the same operation because the column was withheld from CreateTable.
type AddConstraint struct {
	Model      state.ModelKey
	Constraint state.ConstraintDefinition
	Column     *state.FieldState
}

func (op *AddConstraint) Describe() string {
	return fmt.Sprintf("Add constraint %s on %s", op.Constraint.Name, op.Model)
}

func (op *AddConstraint) Reverse() (Operation, error) {
	return &RemoveConstraint{Model: op.Model, Constraint: op.Constraint, Column: op.Column}, nil
}

func (op *AddConstraint) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot add constraint to %s: model does not exist", op.Model)
	}
	if _, exists := model.Constraint(op.Constraint.Name); exists {
		return fmt.Errorf("cannot add constraint %s to %s: constraint already exists", op.Constraint.Name, op.Model)
	}
	if op.Column != nil && !model.HasField(op.Column.Name) {
		if err := model.AddField(op.Column.Clone()); err != nil {
			return err
		}
	}
	model.Constraints = append(model.Constraints, op.Constraint)
	return nil
}

func (op *AddConstraint) Irreversible() bool { return false }

// RemoveConstraint drops a table constraint. The definition (and deferred
// column, if any) is retained for reversal.
type RemoveConstraint struct {
	Model      state.ModelKey
	Constraint state.ConstraintDefinition
	Column     *state.FieldState
}

func (op *RemoveConstraint) Describe() string {
	return fmt.Sprintf("Remove constraint %s from %s", op.Constraint.Name, op.Model)
}

func (op *RemoveConstraint) Reverse() (Operation, error) {
	return &AddConstraint{Model: op.Model, Constraint: op.Constraint, Column: op.Column}, nil
}

func (op *RemoveConstraint) Apply(project *state.ProjectState) error {
	model := project.ModelByKey(op.Model)
	if model == nil {
		return fmt.Errorf("cannot remove constraint from %s: model does not exist", op.Model)
	}
	if _, exists := model.Constraint(op.Constraint.Name); !exists {
		return fmt.Errorf("cannot remove constraint %s from %s: constraint does not exist", op.Constraint.Name, op.Model)
	}
	model.RemoveConstraint(op.Constraint.Name)
	if op.Column != nil {
		model.RemoveField(op.Column.Name)
	}
	return nil
}

func (op *RemoveConstraint) Irreversible() bool { return false }

// AddManyToMany creates the auto-generated junction table backing a
// many-to-many field and records its metadata.
type AddManyToMany struct {
	Meta state.ManyToManyMetadata
}

func (op *AddManyToMany) Describe() string {
	return fmt.Sprintf("Create junction table %s for %s.%s.%s",
		op.Meta.JunctionTable, op.Meta.FromApp, op.Meta.FromModel, op.Meta.FieldName)
}

func (op *AddManyToMany) Reverse() (Operation, error) {
	return &RemoveManyToMany{Meta: op.Meta}, nil
}

func (op *AddManyToMany) Apply(project *state.ProjectState) error {
	if project.HasManyToMany(op.Meta.JunctionTable) {
		return fmt.Errorf("cannot create junction table %s: it already exists", op.Meta.JunctionTable)
	}
	project.AddManyToMany(op.Meta)
	return nil
}

func (op *AddManyToMany) Irreversible() bool { return false }

// RemoveManyToMany drops a junction table. The metadata is retained so the
// reverse can recreate it.
type RemoveManyToMany struct {
	Meta state.ManyToManyMetadata
}

func (op *RemoveManyToMany) Describe() string {
	return fmt.Sprintf("Drop junction table %s for %s.%s.%s",
		op.Meta.JunctionTable, op.Meta.FromApp, op.Meta.FromModel, op.Meta.FieldName)
}

func (op *RemoveManyToMany) Reverse() (Operation, error) {
	return &AddManyToMany{Meta: op.Meta}, nil
}

func (op *RemoveManyToMany) Apply(project *state.ProjectState) error {
	if !project.RemoveManyToMany(op.Meta.JunctionTable) {
		return fmt.Errorf("cannot drop junction table %s: it does not exist", op.Meta.JunctionTable)
	}
	return nil
}

func (op *RemoveManyToMany) Irreversible() bool { return false }

// RunSQL executes raw SQL. It has no effect on the in-memory state; it exists
// for hand-written data migrations.
type RunSQL struct {
	SQL        string
	ReverseSQL string
}

func (op *RunSQL) Describe() string {
	return "Run raw SQL"
}

func (op *RunSQL) Reverse() (Operation, error) {
	if op.ReverseSQL == "" {
		return nil, ErrIrreversible
	}
	return &RunSQL{SQL: op.ReverseSQL, ReverseSQL: op.SQL}, nil
}

func (op *RunSQL) Apply(*state.ProjectState) error { return nil }

func (op *RunSQL) Irreversible() bool { return op.ReverseSQL == "" }

// RunGo executes arbitrary Go against the project state, for data migrations
// written in code. Not serializable to a migration plan file.
type RunGo struct {
	Name     string
	Forward  func(*state.ProjectState) error
	Backward func(*state.ProjectState) error
}

func (op *RunGo) Describe() string {
	return fmt.Sprintf("Run Go migration %s", op.Name)
}

func (op *RunGo) Reverse() (Operation, error) {
	if op.Backward == nil {
		return nil, ErrIrreversible
	}
	return &RunGo{Name: op.Name + "_reverse", Forward: op.Backward, Backward: op.Forward}, nil
}

func (op *RunGo) Apply(project *state.ProjectState) error {
	if op.Forward == nil {
		return nil
	}
	return op.Forward(project)
}

func (op *RunGo) Irreversible() bool { return op.Backward == nil }
