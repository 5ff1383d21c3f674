package operations

import (
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/graph"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// Emitter converts an ordered change set into operations, one per change, in
// the same order.
type Emitter struct {
	// RequiresRecreation reports whether the target backend can only apply a
	// column alteration by recreating the table. Nil means every alteration
	// runs in place.
	RequiresRecreation func(old, new *state.FieldState) bool
}

// NewEmitter creates an emitter for backends that alter columns in place.
func NewEmitter() *Emitter { return &Emitter{} }

// Emit maps every change to its operation.
func (e *Emitter) Emit(ordered *graph.OrderedChangeSet) ([]Operation, error) {
	ops := make([]Operation, 0, len(ordered.Changes))
	for _, change := range ordered.Changes {
		op, err := e.emit(change)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (e *Emitter) emit(change *graph.Change) (Operation, error) {
	switch change.Kind {
	case graph.KindCreateModel:
		return &CreateTable{Model: change.NewModel}, nil
	case graph.KindRenameModel:
		return &RenameTable{App: change.Model.App, OldName: change.OldName, NewName: change.NewName}, nil
	case graph.KindAddField:
		return &AddField{Model: change.Model, Field: change.Field}, nil
	case graph.KindRenameField:
		return &RenameField{Model: change.Model, OldName: change.OldName, NewName: change.NewName}, nil
	case graph.KindAlterField:
		recreate := e.RequiresRecreation != nil && e.RequiresRecreation(change.OldField, change.NewField)
		return &AlterField{Model: change.Model, Old: change.OldField, New: change.NewField, RequiresRecreation: recreate}, nil
	case graph.KindAddIndex:
		return &AddIndex{Model: change.Model, Index: *change.Index}, nil
	case graph.KindRemoveIndex:
		return &RemoveIndex{Model: change.Model, Index: *change.Index}, nil
	case graph.KindAddConstraint:
		return &AddConstraint{Model: change.Model, Constraint: *change.Constraint, Column: change.Field}, nil
	case graph.KindRemoveConstraint:
		return &RemoveConstraint{Model: change.Model, Constraint: *change.Constraint, Column: change.Field}, nil
	case graph.KindRemoveField:
		return &RemoveField{Model: change.Model, Field: change.Field}, nil
	case graph.KindAddManyToMany:
		return &AddManyToMany{Meta: *change.ManyToMany}, nil
	case graph.KindRemoveManyToMany:
		return &RemoveManyToMany{Meta: *change.ManyToMany}, nil
	case graph.KindDeleteModel:
		return &DeleteTable{Model: change.OldModel}, nil
	}
	return nil, fmt.Errorf("unsupported change kind %s", change.Kind)
}
