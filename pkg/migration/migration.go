// Package migration defines the unit the rest of the system produces,
// records and applies: a named, app-scoped list of operations with explicit
// dependencies on other migrations.
package migration

import (
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// Ref identifies a migration another migration depends on.
type Ref struct {
	App  string
	Name string
}

func (r Ref) String() string {
	return r.App + "." + r.Name
}

// Migration is one ordered batch of schema operations for a single app.
type Migration struct {
	App  string
	Name string

	Operations []operations.Operation

	// Dependencies are migrations that must be applied first: the previous
	// migration of the same app, plus migrations of other apps whose tables
	// this one references.
	Dependencies []Ref

	// Replaces lists migrations this one squashes. Empty outside squashing.
	Replaces []Ref

	// Atomic wraps the migration in a transaction on backends that support
	// transactional DDL.
	Atomic bool
}

// ID returns the globally unique "app.name" identifier.
func (m *Migration) ID() string {
	return m.App + "." + m.Name
}

// Ref returns the migration's own reference.
func (m *Migration) Ref() Ref {
	return Ref{App: m.App, Name: m.Name}
}

// IsInitial reports whether the migration has no same-app predecessor.
func (m *Migration) IsInitial() bool {
	for _, dep := range m.Dependencies {
		if dep.App == m.App {
			return false
		}
	}
	return true
}

// Irreversible reports whether any operation refuses reversal.
func (m *Migration) Irreversible() bool {
	for _, op := range m.Operations {
		if op.Irreversible() {
			return true
		}
	}
	return false
}

// Apply replays every operation onto the project state in order.
func (m *Migration) Apply(project *state.ProjectState) error {
	for _, op := range m.Operations {
		if err := op.Apply(project); err != nil {
			return fmt.Errorf("failed to apply %s in %s: %w", op.Describe(), m.ID(), err)
		}
	}
	return nil
}

// Reverse returns the operations that undo the migration, in reverse order.
// Fails with operations.ErrIrreversible if any operation cannot be undone.
func (m *Migration) Reverse() ([]operations.Operation, error) {
	reversed := make([]operations.Operation, 0, len(m.Operations))
	for i := len(m.Operations) - 1; i >= 0; i-- {
		op, err := m.Operations[i].Reverse()
		if err != nil {
			return nil, fmt.Errorf("failed to reverse %s in %s: %w", m.Operations[i].Describe(), m.ID(), err)
		}
		reversed = append(reversed, op)
	}
	return reversed, nil
}
