// Package diff computes the raw set-difference between two project states.
//
// The differ is a pure, symmetric comparison: it reports which models exist
// only in one snapshot and, for models present in both, which fields, indexes,
// constraints and relations were added, removed or modified. No rename
// inference and no ordering happens here; those are later stages. Output
// lists are sorted by name so the result is deterministic regardless of map
// iteration order.
//
// Diffing never fails: malformed input is rejected earlier by
// state.ProjectState.Validate.
package diff

import (
	"sort"

	"github.com/platinummonkey/automigrate/pkg/state"
)

// diffRelevantParams is the explicit subset of field parameters whose change
// constitutes a field modification. Comparing only an enumerated subset keeps
// irrelevant metadata churn from producing false positives.
var diffRelevantParams = []string{
	state.ParamPrimaryKey,
	state.ParamUnique,
	state.ParamDBIndex,
	state.ParamDefault,
	state.ParamAutoNow,
	state.ParamAutoNowAdd,
}

// Differ computes RawChangeSets. The zero value is ready to use.
type Differ struct{}

// NewDiffer creates a differ.
func NewDiffer() *Differ { return &Differ{} }

// Diff computes the raw change set transforming old into new.
func (d *Differ) Diff(old, new *state.ProjectState) *RawChangeSet {
	changes := &RawChangeSet{}

	for _, key := range new.Keys() {
		if !old.HasModel(key) {
			changes.AddedModels = append(changes.AddedModels, new.ModelByKey(key))
		}
	}
	for _, key := range old.Keys() {
		if !new.HasModel(key) {
			changes.RemovedModels = append(changes.RemovedModels, old.ModelByKey(key))
		}
	}
	for _, key := range old.Keys() {
		if !new.HasModel(key) {
			continue
		}
		modelDiff := d.diffModel(old.ModelByKey(key), new.ModelByKey(key))
		if !modelDiff.Empty() {
			changes.ModelDiffs = append(changes.ModelDiffs, modelDiff)
		}
	}

	d.diffManyToMany(old, new, changes)

	// Keys() already iterates sorted, but sort defensively so the contract
	// does not depend on it.
	sortModels(changes.AddedModels)
	sortModels(changes.RemovedModels)
	sort.Slice(changes.ModelDiffs, func(i, j int) bool {
		return changes.ModelDiffs[i].Key.Less(changes.ModelDiffs[j].Key)
	})
	return changes
}

func (d *Differ) diffModel(old, new *state.ModelState) *ModelDiff {
	modelDiff := &ModelDiff{Key: new.Key()}

	for _, newField := range new.Fields {
		if !old.HasField(newField.Name) {
			modelDiff.AddedFields = append(modelDiff.AddedFields, newField)
		}
	}
	for _, oldField := range old.Fields {
		newField := new.Field(oldField.Name)
		if newField == nil {
			modelDiff.RemovedFields = append(modelDiff.RemovedFields, oldField)
			continue
		}
		relChanged := relationChanged(oldField.Relation, newField.Relation)
		if FieldModified(oldField, newField) || relChanged {
			modelDiff.ModifiedFields = append(modelDiff.ModifiedFields, FieldChange{
				Name: oldField.Name,
				Old:  oldField,
				New:  newField,
			})
		}
		if relChanged {
			modelDiff.RelationChanges = append(modelDiff.RelationChanges, RelationChange{
				FieldName: oldField.Name,
				Old:       oldField.Relation,
				New:       newField.Relation,
			})
		}
	}

	d.diffIndexes(old, new, modelDiff)
	d.diffConstraints(old, new, modelDiff)

	sortFields(modelDiff.AddedFields)
	sortFields(modelDiff.RemovedFields)
	sort.Slice(modelDiff.ModifiedFields, func(i, j int) bool {
		return modelDiff.ModifiedFields[i].Name < modelDiff.ModifiedFields[j].Name
	})
	sort.Slice(modelDiff.RelationChanges, func(i, j int) bool {
		return modelDiff.RelationChanges[i].FieldName < modelDiff.RelationChanges[j].FieldName
	})
	return modelDiff
}

// diffManyToMany compares the junction-table side tables by junction table
// name. A changed entry is a remove + add; junction tables have no alter.
// ManyToMany() returns sorted copies, so the output lists are already ordered.
func (d *Differ) diffManyToMany(old, new *state.ProjectState, changes *RawChangeSet) {
	oldEntries := make(map[string]state.ManyToManyMetadata)
	for _, meta := range old.ManyToMany() {
		oldEntries[meta.JunctionTable] = meta
	}
	for _, meta := range new.ManyToMany() {
		existing, ok := oldEntries[meta.JunctionTable]
		if !ok {
			changes.AddedManyToMany = append(changes.AddedManyToMany, meta)
		} else if existing != meta {
			changes.RemovedManyToMany = append(changes.RemovedManyToMany, existing)
			changes.AddedManyToMany = append(changes.AddedManyToMany, meta)
		}
	}
	for _, meta := range old.ManyToMany() {
		if !new.HasManyToMany(meta.JunctionTable) {
			changes.RemovedManyToMany = append(changes.RemovedManyToMany, meta)
		}
	}
}

func (d *Differ) diffIndexes(old, new *state.ModelState, modelDiff *ModelDiff) {
	for _, newIndex := range new.Indexes {
		oldIndex, ok := old.Index(newIndex.Name)
		if !ok {
			modelDiff.AddedIndexes = append(modelDiff.AddedIndexes, newIndex)
		} else if !oldIndex.Equal(newIndex) {
			// A changed index is a remove + add; index DDL has no alter.
			modelDiff.RemovedIndexes = append(modelDiff.RemovedIndexes, oldIndex)
			modelDiff.AddedIndexes = append(modelDiff.AddedIndexes, newIndex)
		}
	}
	for _, oldIndex := range old.Indexes {
		if _, ok := new.Index(oldIndex.Name); !ok {
			modelDiff.RemovedIndexes = append(modelDiff.RemovedIndexes, oldIndex)
		}
	}
	sort.Slice(modelDiff.AddedIndexes, func(i, j int) bool {
		return modelDiff.AddedIndexes[i].Name < modelDiff.AddedIndexes[j].Name
	})
	sort.Slice(modelDiff.RemovedIndexes, func(i, j int) bool {
		return modelDiff.RemovedIndexes[i].Name < modelDiff.RemovedIndexes[j].Name
	})
}

func (d *Differ) diffConstraints(old, new *state.ModelState, modelDiff *ModelDiff) {
	for _, newConstraint := range new.Constraints {
		oldConstraint, ok := old.Constraint(newConstraint.Name)
		if !ok {
			modelDiff.AddedConstraints = append(modelDiff.AddedConstraints, newConstraint)
		} else if !oldConstraint.Equal(newConstraint) {
			modelDiff.RemovedConstraints = append(modelDiff.RemovedConstraints, oldConstraint)
			modelDiff.AddedConstraints = append(modelDiff.AddedConstraints, newConstraint)
		}
	}
	for _, oldConstraint := range old.Constraints {
		if _, ok := new.Constraint(oldConstraint.Name); !ok {
			modelDiff.RemovedConstraints = append(modelDiff.RemovedConstraints, oldConstraint)
		}
	}
	sort.Slice(modelDiff.AddedConstraints, func(i, j int) bool {
		return modelDiff.AddedConstraints[i].Name < modelDiff.AddedConstraints[j].Name
	})
	sort.Slice(modelDiff.RemovedConstraints, func(i, j int) bool {
		return modelDiff.RemovedConstraints[i].Name < modelDiff.RemovedConstraints[j].Name
	})
}

// FieldModified reports whether the column definition changed in a
// diff-relevant way: type, nullability or any enumerated parameter.
func FieldModified(old, new *state.FieldState) bool {
	if !old.Type.Equal(new.Type) || old.Nullable != new.Nullable {
		return true
	}
	oldParams, newParams := old.Params, new.Params
	if oldParams == nil {
		oldParams = state.NewParams()
	}
	if newParams == nil {
		newParams = state.NewParams()
	}
	return !oldParams.EqualOn(newParams, diffRelevantParams)
}

func relationChanged(old, new *state.Relation) bool {
	if old == nil && new == nil {
		return false
	}
	return !old.Equal(new)
}

func sortModels(models []*state.ModelState) {
	sort.Slice(models, func(i, j int) bool {
		return models[i].Key().Less(models[j].Key())
	})
}

func sortFields(fields []*state.FieldState) {
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].Name < fields[j].Name
	})
}
