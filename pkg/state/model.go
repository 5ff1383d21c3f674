package state

import (
	"fmt"
	"sort"
)

// ModelKey is the globally unique identity of a model.
type ModelKey struct {
	App  string
	Name string
}

func (k ModelKey) String() string {
	return k.App + "." + k.Name
}

// Less orders keys by app label, then model name.
func (k ModelKey) Less(o ModelKey) bool {
	if k.App != o.App {
		return k.App < o.App
	}
	return k.Name < o.Name
}

// IndexDefinition is one declared index. Name is unique per model and Columns
// reference existing field names in order.
type IndexDefinition struct {
	Name    string
	Columns []string
	Unique  bool
}

// Equal compares name and full definition.
func (d IndexDefinition) Equal(o IndexDefinition) bool {
	if d.Name != o.Name || d.Unique != o.Unique || len(d.Columns) != len(o.Columns) {
		return false
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// ConstraintKind enumerates supported table constraints.
type ConstraintKind int

const (
	CheckConstraint ConstraintKind = iota
	UniqueConstraint
	ForeignKeyConstraint
)

func (k ConstraintKind) String() string {
	return []string{"check", "unique", "foreign_key"}[k]
}

// ConstraintDefinition is one declared table constraint. Expression holds the
// CHECK condition for check constraints and is empty otherwise.
type ConstraintDefinition struct {
	Name       string
	Kind       ConstraintKind
	Columns    []string
	Expression string
}

// Equal compares name and full definition.
func (d ConstraintDefinition) Equal(o ConstraintDefinition) bool {
	if d.Name != o.Name || d.Kind != o.Kind || d.Expression != o.Expression || len(d.Columns) != len(o.Columns) {
		return false
	}
	for i := range d.Columns {
		if d.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// ModelState is one declared table: an ordered field list plus index and
// constraint definitions. Field order is column declaration order.
type ModelState struct {
	AppLabel    string
	Name        string
	Fields      []*FieldState
	Indexes     []IndexDefinition
	Constraints []ConstraintDefinition
}

// NewModel creates an empty model.
func NewModel(appLabel, name string) *ModelState {
	return &ModelState{AppLabel: appLabel, Name: name}
}

// Key returns the model's identity.
func (m *ModelState) Key() ModelKey {
	return ModelKey{App: m.AppLabel, Name: m.Name}
}

// AddField appends a field, rejecting duplicate names.
func (m *ModelState) AddField(f *FieldState) error {
	if m.Field(f.Name) != nil {
		return &InvalidFieldError{Model: m.Key().String(), Field: f.Name, Reason: "duplicate field name"}
	}
	m.Fields = append(m.Fields, f)
	return nil
}

// MustAddField is AddField for static model definitions where a duplicate is
// a programming error.
func (m *ModelState) MustAddField(f *FieldState) *ModelState {
	if err := m.AddField(f); err != nil {
		panic(err)
	}
	return m
}

// Field returns the named field, or nil.
func (m *ModelState) Field(name string) *FieldState {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// HasField reports whether the named field exists.
func (m *ModelState) HasField(name string) bool {
	return m.Field(name) != nil
}

// RemoveField drops the named field, preserving the order of the rest.
func (m *ModelState) RemoveField(name string) {
	for i, f := range m.Fields {
		if f.Name == name {
			m.Fields = append(m.Fields[:i], m.Fields[i+1:]...)
			return
		}
	}
}

// RenameField changes a field's name in place, keeping its position.
func (m *ModelState) RenameField(oldName, newName string) {
	if f := m.Field(oldName); f != nil {
		f.Name = newName
	}
}

// ReplaceField swaps in a new definition for the named field, keeping its
// position.
func (m *ModelState) ReplaceField(name string, f *FieldState) {
	for i, existing := range m.Fields {
		if existing.Name == name {
			m.Fields[i] = f
			return
		}
	}
}

// Index returns the named index definition, if present.
func (m *ModelState) Index(name string) (IndexDefinition, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexDefinition{}, false
}

// Constraint returns the named constraint definition, if present.
func (m *ModelState) Constraint(name string) (ConstraintDefinition, bool) {
	for _, c := range m.Constraints {
		if c.Name == name {
			return c, true
		}
	}
	return ConstraintDefinition{}, false
}

// RemoveIndex drops the named index.
func (m *ModelState) RemoveIndex(name string) {
	for i, idx := range m.Indexes {
		if idx.Name == name {
			m.Indexes = append(m.Indexes[:i], m.Indexes[i+1:]...)
			return
		}
	}
}

// RemoveConstraint drops the named constraint.
func (m *ModelState) RemoveConstraint(name string) {
	for i, c := range m.Constraints {
		if c.Name == name {
			m.Constraints = append(m.Constraints[:i], m.Constraints[i+1:]...)
			return
		}
	}
}

// Clone deep-copies the model.
func (m *ModelState) Clone() *ModelState {
	out := &ModelState{AppLabel: m.AppLabel, Name: m.Name}
	out.Fields = make([]*FieldState, len(m.Fields))
	for i, f := range m.Fields {
		out.Fields[i] = f.Clone()
	}
	out.Indexes = make([]IndexDefinition, len(m.Indexes))
	for i, idx := range m.Indexes {
		cols := make([]string, len(idx.Columns))
		copy(cols, idx.Columns)
		out.Indexes[i] = IndexDefinition{Name: idx.Name, Columns: cols, Unique: idx.Unique}
	}
	out.Constraints = make([]ConstraintDefinition, len(m.Constraints))
	for i, c := range m.Constraints {
		cols := make([]string, len(c.Columns))
		copy(cols, c.Columns)
		out.Constraints[i] = ConstraintDefinition{Name: c.Name, Kind: c.Kind, Columns: cols, Expression: c.Expression}
	}
	return out
}

// Equal performs a full structural comparison of two models. Field, index
// and constraint sets are compared by name rather than position: declaration
// order matters for emitted DDL but not for schema identity, and reversal
// round-trips (remove a field, add it back) must compare equal.
func (m *ModelState) Equal(o *ModelState) bool {
	if m.AppLabel != o.AppLabel || m.Name != o.Name {
		return false
	}
	if len(m.Fields) != len(o.Fields) || len(m.Indexes) != len(o.Indexes) || len(m.Constraints) != len(o.Constraints) {
		return false
	}
	for _, f := range m.Fields {
		of := o.Field(f.Name)
		if of == nil || !f.Equal(of) {
			return false
		}
	}
	for _, idx := range m.Indexes {
		oidx, ok := o.Index(idx.Name)
		if !ok || !idx.Equal(oidx) {
			return false
		}
	}
	for _, c := range m.Constraints {
		oc, ok := o.Constraint(c.Name)
		if !ok || !c.Equal(oc) {
			return false
		}
	}
	return true
}

// validate checks model-local invariants.
func (m *ModelState) validate() error {
	if !isIdentifier(m.AppLabel) {
		return &InvalidFieldError{Model: m.Key().String(), Reason: fmt.Sprintf("app label %q is not a valid identifier", m.AppLabel)}
	}
	if !isIdentifier(m.Name) {
		return &InvalidFieldError{Model: m.Key().String(), Reason: fmt.Sprintf("model name %q is not a valid identifier", m.Name)}
	}
	seen := make(map[string]bool, len(m.Fields))
	primaryKeys := 0
	for _, f := range m.Fields {
		if !isIdentifier(f.Name) {
			return &InvalidFieldError{Model: m.Key().String(), Field: f.Name, Reason: "field name is not a valid identifier"}
		}
		if seen[f.Name] {
			return &InvalidFieldError{Model: m.Key().String(), Field: f.Name, Reason: "duplicate field name"}
		}
		seen[f.Name] = true
		if f.Type.Kind == VarChar && f.Type.MaxLength <= 0 {
			return &InvalidFieldError{Model: m.Key().String(), Field: f.Name, Reason: "varchar field requires an explicit positive length"}
		}
		if f.PrimaryKey() {
			primaryKeys++
		}
	}
	if primaryKeys > 1 {
		return &InvalidFieldError{Model: m.Key().String(), Reason: fmt.Sprintf("model declares %d primary key fields, at most one allowed", primaryKeys)}
	}
	seenIndexes := make(map[string]bool, len(m.Indexes))
	for _, idx := range m.Indexes {
		if seenIndexes[idx.Name] {
			return &InvalidFieldError{Model: m.Key().String(), Field: idx.Name, Reason: "duplicate index name"}
		}
		seenIndexes[idx.Name] = true
		for _, col := range idx.Columns {
			if !seen[col] {
				return &InvalidFieldError{Model: m.Key().String(), Field: idx.Name, Reason: fmt.Sprintf("index references unknown column %q", col)}
			}
		}
	}
	return nil
}

// SortedFieldNames returns field names in sorted order, used by rename
// detection to compare field sets deterministically.
func (m *ModelState) SortedFieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	sort.Strings(names)
	return names
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
