// Package rename post-processes a raw change set, pairing "removed X + added
// Y" into "renamed X -> Y" when the similarity score clears the configured
// threshold and no better candidate exists.
//
// Matching is greedy assignment: candidate pairs are ranked by score and the
// best unclaimed pair is accepted repeatedly until no pair clears the
// threshold. Ties are broken by longer common name prefix, then by the
// lexicographically smaller removed name, so resolution is deterministic.
// Greedy matching is intentionally not upgraded to optimal assignment:
// changing the matcher would change generated migrations for existing
// projects.
//
// Model-level renames are resolved first; a detected model rename suppresses
// the spurious field-level add/remove noise the raw diff reports for it.
//
// This is a heuristic. A genuine drop+add whose names and types coincidentally
// align can be mis-detected as a rename; below-threshold pairs degrade to the
// always-correct drop+add. Neither case is an error.
package rename

import (
	"sort"

	"github.com/platinummonkey/automigrate/pkg/diff"
	"github.com/platinummonkey/automigrate/pkg/similarity"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// ModelRename is a removed+added model pair resolved into a rename.
type ModelRename struct {
	App     string
	OldName string
	NewName string
	// Old and New carry the full model states so downstream stages can diff
	// the renamed model's contents without lookups.
	Old *state.ModelState
	New *state.ModelState
}

// FieldRename is a removed+added field pair resolved into a rename.
type FieldRename struct {
	Model   state.ModelKey
	OldName string
	NewName string
	Old     *state.FieldState
	New     *state.FieldState
}

// ResolvedChangeSet is a RawChangeSet with rename pairs factored out.
type ResolvedChangeSet struct {
	AddedModels   []*state.ModelState
	RemovedModels []*state.ModelState
	RenamedModels []ModelRename

	ModelDiffs    []*diff.ModelDiff
	RenamedFields []FieldRename

	// Junction-table changes pass through rename resolution untouched; the
	// side table is keyed by junction table name, not by model identity.
	AddedManyToMany   []state.ManyToManyMetadata
	RemovedManyToMany []state.ManyToManyMetadata
}

// Resolver pairs removed+added items into renames.
type Resolver struct {
	scorer *similarity.Scorer
	differ *diff.Differ
}

// NewResolver creates a resolver using the given scorer.
func NewResolver(scorer *similarity.Scorer) *Resolver {
	return &Resolver{scorer: scorer, differ: diff.NewDiffer()}
}

// Resolve factors renames out of the raw change set.
func (r *Resolver) Resolve(raw *diff.RawChangeSet) *ResolvedChangeSet {
	resolved := &ResolvedChangeSet{
		AddedManyToMany:   raw.AddedManyToMany,
		RemovedManyToMany: raw.RemovedManyToMany,
	}

	remainingAdded, remainingRemoved := r.resolveModelRenames(raw, resolved)
	resolved.AddedModels = remainingAdded
	resolved.RemovedModels = remainingRemoved

	// A renamed model may also have changed contents; diff old vs new under
	// the new identity so field changes surface as ordinary model diffs.
	modelDiffs := make([]*diff.ModelDiff, 0, len(raw.ModelDiffs))
	modelDiffs = append(modelDiffs, raw.ModelDiffs...)
	for _, renamed := range resolved.RenamedModels {
		old := renamed.Old.Clone()
		old.Name = renamed.NewName
		renamedDiff := r.diffSingleModel(old, renamed.New)
		if renamedDiff != nil {
			modelDiffs = append(modelDiffs, renamedDiff)
		}
	}

	for _, modelDiff := range modelDiffs {
		kept := r.resolveFieldRenames(modelDiff, resolved)
		if !kept.Empty() {
			resolved.ModelDiffs = append(resolved.ModelDiffs, kept)
		}
	}
	sort.Slice(resolved.ModelDiffs, func(i, j int) bool {
		return resolved.ModelDiffs[i].Key.Less(resolved.ModelDiffs[j].Key)
	})
	return resolved
}

// candidate is one scored (removed, added) pair.
type candidate struct {
	removedName string
	addedName   string
	score       float64
	prefixLen   int
	removedIdx  int
	addedIdx    int
}

// rankCandidates sorts pairs best-first with the deterministic tie-breaks:
// score, then longer common prefix, then smaller removed name, then smaller
// added name.
func rankCandidates(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.prefixLen != b.prefixLen {
			return a.prefixLen > b.prefixLen
		}
		if a.removedName != b.removedName {
			return a.removedName < b.removedName
		}
		return a.addedName < b.addedName
	})
}

func (r *Resolver) resolveModelRenames(raw *diff.RawChangeSet, resolved *ResolvedChangeSet) (added, removed []*state.ModelState) {
	threshold := r.scorer.Config().RenameThreshold

	candidates := make([]candidate, 0)
	for removedIdx, removedModel := range raw.RemovedModels {
		for addedIdx, addedModel := range raw.AddedModels {
			// Renames never cross app boundaries.
			if removedModel.AppLabel != addedModel.AppLabel {
				continue
			}
			score := r.scorer.ModelScore(removedModel, addedModel)
			if score < threshold {
				continue
			}
			candidates = append(candidates, candidate{
				removedName: removedModel.Name,
				addedName:   addedModel.Name,
				score:       score,
				prefixLen:   similarity.CommonPrefixLen(removedModel.Name, addedModel.Name),
				removedIdx:  removedIdx,
				addedIdx:    addedIdx,
			})
		}
	}
	rankCandidates(candidates)

	claimedRemoved := make(map[int]bool)
	claimedAdded := make(map[int]bool)
	for _, cand := range candidates {
		if claimedRemoved[cand.removedIdx] || claimedAdded[cand.addedIdx] {
			continue
		}
		claimedRemoved[cand.removedIdx] = true
		claimedAdded[cand.addedIdx] = true
		resolved.RenamedModels = append(resolved.RenamedModels, ModelRename{
			App:     raw.RemovedModels[cand.removedIdx].AppLabel,
			OldName: cand.removedName,
			NewName: cand.addedName,
			Old:     raw.RemovedModels[cand.removedIdx],
			New:     raw.AddedModels[cand.addedIdx],
		})
	}

	for i, m := range raw.AddedModels {
		if !claimedAdded[i] {
			added = append(added, m)
		}
	}
	for i, m := range raw.RemovedModels {
		if !claimedRemoved[i] {
			removed = append(removed, m)
		}
	}
	return added, removed
}

// resolveFieldRenames factors field renames out of one model diff, returning
// the diff with matched fields removed from its add/remove lists.
func (r *Resolver) resolveFieldRenames(modelDiff *diff.ModelDiff, resolved *ResolvedChangeSet) *diff.ModelDiff {
	if len(modelDiff.RemovedFields) == 0 || len(modelDiff.AddedFields) == 0 {
		return modelDiff
	}
	threshold := r.scorer.Config().RenameThreshold

	candidates := make([]candidate, 0, len(modelDiff.RemovedFields)*len(modelDiff.AddedFields))
	for removedIdx, removedField := range modelDiff.RemovedFields {
		for addedIdx, addedField := range modelDiff.AddedFields {
			score := r.scorer.FieldScore(removedField, addedField)
			if score < threshold {
				continue
			}
			candidates = append(candidates, candidate{
				removedName: removedField.Name,
				addedName:   addedField.Name,
				score:       score,
				prefixLen:   similarity.CommonPrefixLen(removedField.Name, addedField.Name),
				removedIdx:  removedIdx,
				addedIdx:    addedIdx,
			})
		}
	}
	rankCandidates(candidates)

	claimedRemoved := make(map[int]bool)
	claimedAdded := make(map[int]bool)
	for _, cand := range candidates {
		if claimedRemoved[cand.removedIdx] || claimedAdded[cand.addedIdx] {
			continue
		}
		claimedRemoved[cand.removedIdx] = true
		claimedAdded[cand.addedIdx] = true
		resolved.RenamedFields = append(resolved.RenamedFields, FieldRename{
			Model:   modelDiff.Key,
			OldName: cand.removedName,
			NewName: cand.addedName,
			Old:     modelDiff.RemovedFields[cand.removedIdx],
			New:     modelDiff.AddedFields[cand.addedIdx],
		})
	}
	if len(claimedRemoved) == 0 {
		return modelDiff
	}

	kept := *modelDiff
	kept.AddedFields = nil
	kept.RemovedFields = nil
	for i, f := range modelDiff.AddedFields {
		if !claimedAdded[i] {
			kept.AddedFields = append(kept.AddedFields, f)
		}
	}
	for i, f := range modelDiff.RemovedFields {
		if !claimedRemoved[i] {
			kept.RemovedFields = append(kept.RemovedFields, f)
		}
	}

	// A rename whose definitions also differ (beyond the name) still needs an
	// alter after the rename.
	for _, fieldRename := range resolved.RenamedFields {
		if fieldRename.Model != modelDiff.Key {
			continue
		}
		renamedOld := fieldRename.Old.Clone()
		renamedOld.Name = fieldRename.NewName
		if diff.FieldModified(renamedOld, fieldRename.New) {
			kept.ModifiedFields = append(kept.ModifiedFields, diff.FieldChange{
				Name: fieldRename.NewName,
				Old:  renamedOld,
				New:  fieldRename.New,
			})
		}
	}
	sort.Slice(kept.ModifiedFields, func(i, j int) bool {
		return kept.ModifiedFields[i].Name < kept.ModifiedFields[j].Name
	})
	return &kept
}

// diffSingleModel diffs two versions of one model, returning nil when they
// are identical.
func (r *Resolver) diffSingleModel(old, new *state.ModelState) *diff.ModelDiff {
	oldProject := state.NewProjectState()
	newProject := state.NewProjectState()
	if err := oldProject.AddModel(old); err != nil {
		return nil
	}
	if err := newProject.AddModel(new); err != nil {
		return nil
	}
	changes := r.differ.Diff(oldProject, newProject)
	if len(changes.ModelDiffs) == 0 {
		return nil
	}
	return changes.ModelDiffs[0]
}
