package executor

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// Executor applies and rolls back migrations against a live database.
type Executor struct {
	db       *sql.DB
	dialect  Dialect
	recorder *Recorder
	log      *logrus.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger overrides the executor's logger.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// NewExecutor creates an executor for the given database and dialect.
func NewExecutor(db *sql.DB, dialect Dialect, opts ...Option) *Executor {
	e := &Executor{
		db:       db,
		dialect:  dialect,
		recorder: NewRecorder(db, dialect),
		log:      logrus.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recorder exposes the history recorder, for callers that only need to read
// applied history.
func (e *Executor) Recorder() *Recorder { return e.recorder }

// Plan returns the migrations from available that are not yet applied, in an
// order satisfying their dependencies. Ties break on migration ID so the plan
// is deterministic.
func (e *Executor) Plan(available []*migration.Migration, applied []migration.Ref) ([]*migration.Migration, error) {
	appliedSet := make(map[migration.Ref]bool, len(applied))
	for _, ref := range applied {
		appliedSet[ref] = true
	}

	pending := make([]*migration.Migration, 0, len(available))
	byRef := make(map[migration.Ref]int)
	for _, m := range available {
		if appliedSet[m.Ref()] {
			continue
		}
		byRef[m.Ref()] = len(pending)
		pending = append(pending, m)
	}

	adjacency := make([][]int, len(pending))
	indegree := make([]int, len(pending))
	for i, m := range pending {
		for _, dep := range m.Dependencies {
			if appliedSet[dep] {
				continue
			}
			j, ok := byRef[dep]
			if !ok {
				return nil, fmt.Errorf("migration %s depends on %s, which is neither applied nor available", m.ID(), dep)
			}
			adjacency[j] = append(adjacency[j], i)
			indegree[i]++
		}
	}

	var ready []int
	for i := range pending {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	sortReady := func() {
		sort.Slice(ready, func(a, b int) bool { return pending[ready[a]].ID() < pending[ready[b]].ID() })
	}
	sortReady()

	plan := make([]*migration.Migration, 0, len(pending))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		plan = append(plan, pending[next])
		for _, dependent := range adjacency[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sortReady()
	}
	if len(plan) != len(pending) {
		return nil, fmt.Errorf("migration dependencies contain a cycle")
	}
	return plan, nil
}

// Apply runs the migrations in order, recording each in history. project is
// the in-memory state replayed alongside; it supplies the table definitions
// SQLite recreation needs. fake records history without executing SQL.
func (e *Executor) Apply(ctx context.Context, migrations []*migration.Migration, project *state.ProjectState, fake bool) error {
	if err := e.recorder.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := e.recorder.AcquireLock(ctx); err != nil {
		return err
	}
	defer e.recorder.ReleaseLock(ctx)

	for _, m := range migrations {
		runID := uuid.NewString()
		log := e.log.WithFields(logrus.Fields{
			"app":    m.App,
			"name":   m.Name,
			"run_id": runID,
			"fake":   fake,
		})
		log.Info("applying migration")

		if err := e.runMigration(ctx, m, project, fake, runID); err != nil {
			log.WithError(err).Error("migration failed")
			return err
		}
		log.Info("migration applied")
	}
	return nil
}

func (e *Executor) runMigration(ctx context.Context, m *migration.Migration, project *state.ProjectState, fake bool, runID string) error {
	atomic := m.Atomic && e.dialect.SupportsTransactionalDDL()
	if atomic && !fake {
		tx, err := e.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", m.ID(), err)
		}
		if err := e.runOperations(ctx, tx, m.Operations, project, m.ID()); err != nil {
			tx.Rollback()
			return err
		}
		if err := e.recorder.Record(ctx, tx, m, runID); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit %s: %w", m.ID(), err)
		}
		return nil
	}

	if fake {
		// State-only application: replay onto the project so later
		// migrations see the schema, record, run nothing.
		for _, op := range m.Operations {
			if err := op.Apply(project); err != nil {
				return fmt.Errorf("failed to replay %s for %s: %w", op.Describe(), m.ID(), err)
			}
		}
	} else if err := e.runOperations(ctx, e.db, m.Operations, project, m.ID()); err != nil {
		return err
	}
	return e.recorder.Record(ctx, e.db, m, runID)
}

// Rollback reverses one applied migration and removes its history row.
func (e *Executor) Rollback(ctx context.Context, m *migration.Migration, project *state.ProjectState, fake bool) error {
	reversed, err := m.Reverse()
	if err != nil {
		return err
	}
	log := e.log.WithFields(logrus.Fields{"app": m.App, "name": m.Name, "fake": fake})
	log.Info("rolling back migration")

	if fake {
		for _, op := range reversed {
			if err := op.Apply(project); err != nil {
				return fmt.Errorf("failed to replay %s while rolling back %s: %w", op.Describe(), m.ID(), err)
			}
		}
	} else if err := e.runOperations(ctx, e.db, reversed, project, m.ID()); err != nil {
		return err
	}
	return e.recorder.Unrecord(ctx, e.db, m.Ref())
}

// runOperations replays each operation onto the project state and executes
// its SQL. Replay happens first so dialects see the post-operation model.
func (e *Executor) runOperations(ctx context.Context, ex execer, ops []operations.Operation, project *state.ProjectState, migrationID string) error {
	for _, op := range ops {
		if err := op.Apply(project); err != nil {
			return fmt.Errorf("failed to replay %s for %s: %w", op.Describe(), migrationID, err)
		}
		var model *state.ModelState
		if key, ok := operationModel(op); ok {
			model = project.ModelByKey(key)
		}
		statements, err := e.dialect.SQL(op, model)
		if err != nil {
			return fmt.Errorf("failed to render %s for %s: %w", op.Describe(), migrationID, err)
		}
		for _, statement := range statements {
			e.log.WithField("sql", statement).Debug("executing")
			if _, err := ex.ExecContext(ctx, statement); err != nil {
				return fmt.Errorf("failed to execute %q for %s: %w", statement, migrationID, err)
			}
		}
	}
	return nil
}

// operationModel returns the key of the model an operation leaves behind,
// ok=false when the operation has no surviving model.
func operationModel(op operations.Operation) (state.ModelKey, bool) {
	switch op := op.(type) {
	case *operations.CreateTable:
		return op.Model.Key(), true
	case *operations.RenameTable:
		return state.ModelKey{App: op.App, Name: op.NewName}, true
	case *operations.AddField:
		return op.Model, true
	case *operations.RemoveField:
		return op.Model, true
	case *operations.RenameField:
		return op.Model, true
	case *operations.AlterField:
		return op.Model, true
	case *operations.AddIndex:
		return op.Model, true
	case *operations.RemoveIndex:
		return op.Model, true
	case *operations.AddConstraint:
		return op.Model, true
	case *operations.RemoveConstraint:
		return op.Model, true
	}
	return state.ModelKey{}, false
}
