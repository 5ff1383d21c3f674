package state

import "sort"

// ManyToManyMetadata describes one auto-generated junction table backing a
// many-to-many field.
type ManyToManyMetadata struct {
	JunctionTable string
	FromApp       string
	FromModel     string
	FieldName     string
	ToApp         string
	ToModel       string
}

// ProjectState is the full mapping from model keys to model states at one
// point in migration history, plus the junction-table side table.
type ProjectState struct {
	models     map[ModelKey]*ModelState
	manyToMany []ManyToManyMetadata
}

// NewProjectState creates an empty project state.
func NewProjectState() *ProjectState {
	return &ProjectState{models: make(map[ModelKey]*ModelState)}
}

// AddModel registers a model, rejecting duplicate keys.
func (p *ProjectState) AddModel(m *ModelState) error {
	key := m.Key()
	if _, exists := p.models[key]; exists {
		return &DuplicateModelError{App: key.App, Name: key.Name}
	}
	p.models[key] = m
	return nil
}

// MustAddModel is AddModel for static test fixtures and declared-model
// registries where a duplicate is a programming error.
func (p *ProjectState) MustAddModel(m *ModelState) *ProjectState {
	if err := p.AddModel(m); err != nil {
		panic(err)
	}
	return p
}

// Model returns the model for (app, name), or nil.
func (p *ProjectState) Model(app, name string) *ModelState {
	return p.models[ModelKey{App: app, Name: name}]
}

// ModelByKey returns the model for key, or nil.
func (p *ProjectState) ModelByKey(key ModelKey) *ModelState {
	return p.models[key]
}

// HasModel reports whether a model exists for key.
func (p *ProjectState) HasModel(key ModelKey) bool {
	_, ok := p.models[key]
	return ok
}

// RemoveModel deletes the model for (app, name).
func (p *ProjectState) RemoveModel(app, name string) {
	delete(p.models, ModelKey{App: app, Name: name})
}

// RenameModel changes a model's name and rewrites every relation in the
// project that referenced the old name.
func (p *ProjectState) RenameModel(app, oldName, newName string) {
	oldKey := ModelKey{App: app, Name: oldName}
	m, ok := p.models[oldKey]
	if !ok {
		return
	}
	delete(p.models, oldKey)
	m.Name = newName
	p.models[ModelKey{App: app, Name: newName}] = m

	for _, other := range p.models {
		for _, f := range other.Fields {
			if f.Relation != nil && f.Relation.TargetApp == app && f.Relation.TargetModel == oldName {
				f.Relation.TargetModel = newName
			}
		}
	}
	for i := range p.manyToMany {
		if p.manyToMany[i].ToApp == app && p.manyToMany[i].ToModel == oldName {
			p.manyToMany[i].ToModel = newName
		}
		if p.manyToMany[i].FromApp == app && p.manyToMany[i].FromModel == oldName {
			p.manyToMany[i].FromModel = newName
		}
	}
}

// Keys returns all model keys in sorted order.
func (p *ProjectState) Keys() []ModelKey {
	keys := make([]ModelKey, 0, len(p.models))
	for k := range p.models {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Models returns all models sorted by key.
func (p *ProjectState) Models() []*ModelState {
	keys := p.Keys()
	out := make([]*ModelState, len(keys))
	for i, k := range keys {
		out[i] = p.models[k]
	}
	return out
}

// Len returns the number of models.
func (p *ProjectState) Len() int { return len(p.models) }

// AddManyToMany records junction-table metadata for an M2M field.
func (p *ProjectState) AddManyToMany(meta ManyToManyMetadata) {
	p.manyToMany = append(p.manyToMany, meta)
}

// HasManyToMany reports whether a junction-table entry exists.
func (p *ProjectState) HasManyToMany(junctionTable string) bool {
	for _, meta := range p.manyToMany {
		if meta.JunctionTable == junctionTable {
			return true
		}
	}
	return false
}

// RemoveManyToMany deletes the junction-table entry, reporting whether it
// existed.
func (p *ProjectState) RemoveManyToMany(junctionTable string) bool {
	for i, meta := range p.manyToMany {
		if meta.JunctionTable == junctionTable {
			p.manyToMany = append(p.manyToMany[:i], p.manyToMany[i+1:]...)
			return true
		}
	}
	return false
}

// ManyToMany returns the junction-table side table, sorted by junction table
// name.
func (p *ProjectState) ManyToMany() []ManyToManyMetadata {
	out := make([]ManyToManyMetadata, len(p.manyToMany))
	copy(out, p.manyToMany)
	sort.Slice(out, func(i, j int) bool { return out[i].JunctionTable < out[j].JunctionTable })
	return out
}

// Clone deep-copies the project state.
func (p *ProjectState) Clone() *ProjectState {
	out := NewProjectState()
	for k, m := range p.models {
		out.models[k] = m.Clone()
	}
	out.manyToMany = make([]ManyToManyMetadata, len(p.manyToMany))
	copy(out.manyToMany, p.manyToMany)
	return out
}

// Equal performs a full structural comparison of two project states.
func (p *ProjectState) Equal(o *ProjectState) bool {
	if len(p.models) != len(o.models) {
		return false
	}
	for k, m := range p.models {
		om, ok := o.models[k]
		if !ok || !m.Equal(om) {
			return false
		}
	}
	mine, theirs := p.ManyToMany(), o.ManyToMany()
	if len(mine) != len(theirs) {
		return false
	}
	for i := range mine {
		if mine[i] != theirs[i] {
			return false
		}
	}
	return true
}

// Validate checks every structural invariant: model-local rules plus
// project-wide relation resolution. Dangling FK/O2O/M2M targets are a
// validation error, never silently dropped.
func (p *ProjectState) Validate() error {
	for _, key := range p.Keys() {
		m := p.models[key]
		if err := m.validate(); err != nil {
			return err
		}
		for _, f := range m.Fields {
			if f.Relation == nil {
				continue
			}
			target := f.Relation.Target()
			if !p.HasModel(target) {
				return &DanglingReferenceError{From: key.String() + "." + f.Name, To: target.String()}
			}
		}
	}
	for _, meta := range p.manyToMany {
		from := ModelKey{App: meta.FromApp, Name: meta.FromModel}
		to := ModelKey{App: meta.ToApp, Name: meta.ToModel}
		if !p.HasModel(from) {
			return &DanglingReferenceError{From: meta.JunctionTable, To: from.String()}
		}
		if !p.HasModel(to) {
			return &DanglingReferenceError{From: meta.JunctionTable, To: to.String()}
		}
	}
	return nil
}
