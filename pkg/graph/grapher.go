package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/automigrate/pkg/rename"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// Grapher orders resolved change sets.
type Grapher struct {
	// DeferConstraints enables foreign key cycle breaking: the offending FK
	// columns are withheld from CREATE and added later as deferred constraint
	// operations. When false, such cycles fail with CircularDependencyError.
	DeferConstraints bool
}

// NewGrapher creates a grapher with constraint deferral enabled.
func NewGrapher() *Grapher {
	return &Grapher{DeferConstraints: true}
}

// Order flattens the resolved change set into a dependency-respecting total
// order. It fails only on dependency cycles that cannot be broken.
func (g *Grapher) Order(resolved *rename.ResolvedChangeSet) (*OrderedChangeSet, error) {
	changes := buildChanges(resolved)
	if g.DeferConstraints {
		changes = splitCreateCycles(changes)
		changes = splitDeleteCycles(changes)
	}
	adjacency, indegree := buildEdges(changes)
	ordered, ok := kahn(changes, adjacency, indegree)
	if !ok {
		return nil, &CircularDependencyError{Cycle: findCycle(changes, adjacency, ordered)}
	}
	return &OrderedChangeSet{Changes: ordered}, nil
}

// buildChanges flattens the resolved change set into graph nodes.
func buildChanges(resolved *rename.ResolvedChangeSet) []*Change {
	changes := make([]*Change, 0)

	for _, model := range resolved.AddedModels {
		changes = append(changes, &Change{Kind: KindCreateModel, Model: model.Key(), NewModel: model})
	}
	for _, renamed := range resolved.RenamedModels {
		changes = append(changes, &Change{
			Kind:    KindRenameModel,
			Model:   state.ModelKey{App: renamed.App, Name: renamed.NewName},
			OldName: renamed.OldName,
			NewName: renamed.NewName,
		})
	}
	for _, model := range resolved.RemovedModels {
		changes = append(changes, &Change{Kind: KindDeleteModel, Model: model.Key(), OldModel: model})
	}
	for i := range resolved.AddedManyToMany {
		meta := &resolved.AddedManyToMany[i]
		changes = append(changes, &Change{
			Kind:       KindAddManyToMany,
			Model:      state.ModelKey{App: meta.FromApp, Name: meta.FromModel},
			ManyToMany: meta,
		})
	}
	for i := range resolved.RemovedManyToMany {
		meta := &resolved.RemovedManyToMany[i]
		changes = append(changes, &Change{
			Kind:       KindRemoveManyToMany,
			Model:      state.ModelKey{App: meta.FromApp, Name: meta.FromModel},
			ManyToMany: meta,
		})
	}
	for _, renamed := range resolved.RenamedFields {
		changes = append(changes, &Change{
			Kind:     KindRenameField,
			Model:    renamed.Model,
			OldName:  renamed.OldName,
			NewName:  renamed.NewName,
			OldField: renamed.Old,
			NewField: renamed.New,
		})
	}
	for _, modelDiff := range resolved.ModelDiffs {
		key := modelDiff.Key
		for _, field := range modelDiff.AddedFields {
			changes = append(changes, &Change{Kind: KindAddField, Model: key, Field: field})
		}
		for _, fieldChange := range modelDiff.ModifiedFields {
			changes = append(changes, &Change{Kind: KindAlterField, Model: key, OldField: fieldChange.Old, NewField: fieldChange.New})
		}
		for i := range modelDiff.AddedIndexes {
			changes = append(changes, &Change{Kind: KindAddIndex, Model: key, Index: &modelDiff.AddedIndexes[i]})
		}
		for i := range modelDiff.AddedConstraints {
			changes = append(changes, &Change{Kind: KindAddConstraint, Model: key, Constraint: &modelDiff.AddedConstraints[i]})
		}
		for i := range modelDiff.RemovedIndexes {
			changes = append(changes, &Change{Kind: KindRemoveIndex, Model: key, Index: &modelDiff.RemovedIndexes[i]})
		}
		for i := range modelDiff.RemovedConstraints {
			changes = append(changes, &Change{Kind: KindRemoveConstraint, Model: key, Constraint: &modelDiff.RemovedConstraints[i]})
		}
		for _, field := range modelDiff.RemovedFields {
			changes = append(changes, &Change{Kind: KindRemoveField, Model: key, Field: field})
		}
	}
	return changes
}

// columnRelation returns the relation when the field maps to a real column
// with a referential dependency. Many-to-many fields have no column; their
// junction table is tracked separately.
func columnRelation(field *state.FieldState) *state.Relation {
	if field == nil || field.Relation == nil || field.Relation.Kind == state.ManyToMany {
		return nil
	}
	return field.Relation
}

// splitCreateCycles finds strongly connected groups of created models linked
// by foreign keys and withholds the offending columns from their CREATEs,
// appending deferred constraint changes that add column and FK once every
// table in the group exists.
func splitCreateCycles(changes []*Change) []*Change {
	createIdx := make(map[state.ModelKey]int)
	for i, change := range changes {
		if change.Kind == KindCreateModel {
			createIdx[change.Model] = i
		}
	}
	if len(createIdx) < 2 {
		return changes
	}

	groups := foreignKeySCCs(createIdx, func(key state.ModelKey) *state.ModelState {
		return changes[createIdx[key]].NewModel
	})
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		members := make(map[state.ModelKey]bool, len(group))
		for _, key := range group {
			members[key] = true
		}
		for _, key := range group {
			create := changes[createIdx[key]]
			trimmed := create.NewModel.Clone()
			for _, field := range create.NewModel.Fields {
				relation := columnRelation(field)
				if relation == nil || relation.Target() == key || !members[relation.Target()] {
					continue
				}
				trimmed.RemoveField(field.Name)
				changes = append(changes, &Change{
					Kind:  KindAddConstraint,
					Model: key,
					Constraint: &state.ConstraintDefinition{
						Name:    deferredConstraintName(key, field.Name),
						Kind:    state.ForeignKeyConstraint,
						Columns: []string{field.Name},
					},
					Field:    field,
					Deferred: true,
				})
			}
			create.NewModel = trimmed
		}
	}
	return changes
}

func deferredConstraintName(key state.ModelKey, fieldName string) string {
	return fmt.Sprintf("fk_%s_%s_%s", strings.ToLower(key.App), strings.ToLower(key.Name), fieldName)
}

// splitDeleteCycles is the drop-side mirror of splitCreateCycles: for
// strongly connected groups of deleted models linked by foreign keys, the
// offending columns are dropped as explicit field removals first, so the
// table drops no longer depend on each other.
func splitDeleteCycles(changes []*Change) []*Change {
	deleteIdx := make(map[state.ModelKey]int)
	for i, change := range changes {
		if change.Kind == KindDeleteModel {
			deleteIdx[change.Model] = i
		}
	}
	if len(deleteIdx) < 2 {
		return changes
	}

	groups := foreignKeySCCs(deleteIdx, func(key state.ModelKey) *state.ModelState {
		return changes[deleteIdx[key]].OldModel
	})
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		members := make(map[state.ModelKey]bool, len(group))
		for _, key := range group {
			members[key] = true
		}
		for _, key := range group {
			del := changes[deleteIdx[key]]
			trimmed := del.OldModel.Clone()
			for _, field := range del.OldModel.Fields {
				relation := columnRelation(field)
				if relation == nil || relation.Target() == key || !members[relation.Target()] {
					continue
				}
				trimmed.RemoveField(field.Name)
				changes = append(changes, &Change{Kind: KindRemoveField, Model: key, Field: field})
			}
			del.OldModel = trimmed
		}
	}
	return changes
}

// foreignKeySCCs runs Tarjan's algorithm over the given models linked by FK
// fields, visiting keys in sorted order so group discovery is deterministic.
// modelOf supplies each key's field list.
func foreignKeySCCs(idx map[state.ModelKey]int, modelOf func(state.ModelKey) *state.ModelState) [][]state.ModelKey {
	keys := make([]state.ModelKey, 0, len(idx))
	for key := range idx {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	dependsOn := func(key state.ModelKey) []state.ModelKey {
		var targets []state.ModelKey
		for _, field := range modelOf(key).Fields {
			relation := columnRelation(field)
			if relation == nil {
				continue
			}
			target := relation.Target()
			if target == key {
				continue
			}
			if _, ok := idx[target]; ok {
				targets = append(targets, target)
			}
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].Less(targets[j]) })
		return targets
	}

	index := 0
	indices := make(map[state.ModelKey]int)
	lowlink := make(map[state.ModelKey]int)
	onStack := make(map[state.ModelKey]bool)
	var stack []state.ModelKey
	var groups [][]state.ModelKey

	var visit func(key state.ModelKey)
	visit = func(key state.ModelKey) {
		indices[key] = index
		lowlink[key] = index
		index++
		stack = append(stack, key)
		onStack[key] = true

		for _, target := range dependsOn(key) {
			if _, seen := indices[target]; !seen {
				visit(target)
				if lowlink[target] < lowlink[key] {
					lowlink[key] = lowlink[target]
				}
			} else if onStack[target] && indices[target] < lowlink[key] {
				lowlink[key] = indices[target]
			}
		}

		if lowlink[key] == indices[key] {
			var group []state.ModelKey
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				group = append(group, top)
				if top == key {
					break
				}
			}
			sort.Slice(group, func(i, j int) bool { return group[i].Less(group[j]) })
			groups = append(groups, group)
		}
	}

	for _, key := range keys {
		if _, seen := indices[key]; !seen {
			visit(key)
		}
	}
	return groups
}

// manyToManyEndpoints returns the junction table's two referenced model keys.
func manyToManyEndpoints(meta *state.ManyToManyMetadata) []state.ModelKey {
	return []state.ModelKey{
		{App: meta.FromApp, Name: meta.FromModel},
		{App: meta.ToApp, Name: meta.ToModel},
	}
}

// buildEdges derives dependency edges. An edge from -> to means "from must
// run before to".
func buildEdges(changes []*Change) (adjacency [][]int, indegree []int) {
	adjacency = make([][]int, len(changes))
	indegree = make([]int, len(changes))
	seen := make(map[[2]int]bool)
	addEdge := func(from, to int) {
		if from == to || seen[[2]int{from, to}] {
			return
		}
		seen[[2]int{from, to}] = true
		adjacency[from] = append(adjacency[from], to)
		indegree[to]++
	}

	createIdx := make(map[state.ModelKey]int)
	renameIdx := make(map[state.ModelKey]int)
	deleteIdx := make(map[state.ModelKey]int)
	for i, change := range changes {
		switch change.Kind {
		case KindCreateModel:
			createIdx[change.Model] = i
		case KindRenameModel:
			renameIdx[change.Model] = i
		case KindDeleteModel:
			deleteIdx[change.Model] = i
		}
	}

	// targetBefore orders the change after the creation or rename that brings
	// the referenced table into existence under its current name.
	targetBefore := func(i int, relation *state.Relation, owner state.ModelKey) {
		if relation == nil {
			return
		}
		target := relation.Target()
		if target == owner {
			return
		}
		if j, ok := createIdx[target]; ok {
			addEdge(j, i)
		} else if j, ok := renameIdx[target]; ok {
			addEdge(j, i)
		}
	}

	for i, change := range changes {
		// Changes to a renamed model address the post-rename name.
		if j, ok := renameIdx[change.Model]; ok && change.Kind != KindRenameModel {
			addEdge(j, i)
		}

		switch change.Kind {
		case KindCreateModel:
			for _, field := range change.NewModel.Fields {
				targetBefore(i, columnRelation(field), change.Model)
			}
		case KindAddField:
			targetBefore(i, columnRelation(change.Field), change.Model)
		case KindAlterField:
			targetBefore(i, columnRelation(change.NewField), change.Model)
		case KindAddConstraint:
			if change.Deferred {
				if j, ok := createIdx[change.Model]; ok {
					addEdge(j, i)
				}
				targetBefore(i, columnRelation(change.Field), change.Model)
			}
		case KindAddManyToMany:
			// Both endpoint tables exist before the junction table.
			for _, endpoint := range manyToManyEndpoints(change.ManyToMany) {
				if j, ok := createIdx[endpoint]; ok {
					addEdge(j, i)
				} else if j, ok := renameIdx[endpoint]; ok {
					addEdge(j, i)
				}
			}
		case KindRemoveManyToMany:
			// The junction table drops before either endpoint table.
			for _, endpoint := range manyToManyEndpoints(change.ManyToMany) {
				if j, ok := deleteIdx[endpoint]; ok {
					addEdge(i, j)
				}
			}
		case KindRemoveField:
			// Drop the referencing column before the referenced table.
			if relation := columnRelation(change.Field); relation != nil {
				if j, ok := deleteIdx[relation.Target()]; ok {
					addEdge(i, j)
				}
			}
			// When the owning table is itself being dropped (delete-cycle
			// splitting), the column drop runs first.
			if j, ok := deleteIdx[change.Model]; ok {
				addEdge(i, j)
			}
		case KindDeleteModel:
			// Drop referencing tables before the tables they reference.
			for _, field := range change.OldModel.Fields {
				relation := columnRelation(field)
				if relation == nil || relation.Target() == change.Model {
					continue
				}
				if j, ok := deleteIdx[relation.Target()]; ok {
					addEdge(i, j)
				}
			}
		}
	}
	return adjacency, indegree
}

// kahn runs Kahn's algorithm with a sorted ready queue. Returns ok=false when
// a cycle blocks completion; the partial order is still returned so the cycle
// reporter can exclude processed nodes.
func kahn(changes []*Change, adjacency [][]int, indegree []int) ([]*Change, bool) {
	remaining := make([]int, len(indegree))
	copy(remaining, indegree)

	var ready []int
	for i := range changes {
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
	}
	sortReady := func() {
		sort.Slice(ready, func(a, b int) bool { return changes[ready[a]].less(changes[ready[b]]) })
	}
	sortReady()

	ordered := make([]*Change, 0, len(changes))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, changes[next])
		for _, dependent := range adjacency[next] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sortReady()
	}
	return ordered, len(ordered) == len(changes)
}

// findCycle walks the unprocessed subgraph and returns one cycle's model
// keys, first key repeated at the end.
func findCycle(changes []*Change, adjacency [][]int, processed []*Change) []state.ModelKey {
	done := make(map[*Change]bool, len(processed))
	for _, change := range processed {
		done[change] = true
	}

	const (
		unvisited = 0
		inStack   = 1
		finished  = 2
	)
	status := make([]int, len(changes))
	var path []int
	var cycle []int

	var visit func(node int) bool
	visit = func(node int) bool {
		status[node] = inStack
		path = append(path, node)
		for _, next := range adjacency[node] {
			if done[changes[next]] {
				continue
			}
			switch status[next] {
			case inStack:
				for i, onPath := range path {
					if onPath == next {
						cycle = append(cycle, path[i:]...)
						cycle = append(cycle, next)
						return true
					}
				}
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		status[node] = finished
		return false
	}

	for i, change := range changes {
		if done[change] || status[i] != unvisited {
			continue
		}
		if visit(i) {
			break
		}
	}

	keys := make([]state.ModelKey, len(cycle))
	for i, node := range cycle {
		keys[i] = changes[node].Model
	}
	return keys
}
