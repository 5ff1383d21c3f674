package autodetect

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/automigrate/pkg/diff"
	"github.com/platinummonkey/automigrate/pkg/graph"
	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/rename"
	"github.com/platinummonkey/automigrate/pkg/similarity"
	"github.com/platinummonkey/automigrate/pkg/state"
)

// Pipeline stage names carried by Error.
const (
	StageValidate = "validate"
	StageDiff     = "diff"
	StageResolve  = "resolve"
	StageOrder    = "order"
	StageEmit     = "emit"
)

// Error wraps a pipeline failure with the stage it happened in.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("autodetection failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// PriorMigrations returns the latest recorded migration for an app, used to
// link generated migrations into history. ok=false means the app has none.
type PriorMigrations func(app string) (ref migration.Ref, ok bool)

// Autodetector runs the full detection pipeline.
type Autodetector struct {
	differ   *diff.Differ
	resolver *rename.Resolver
	grapher  *graph.Grapher
	emitter  *operations.Emitter
	priors   PriorMigrations
	now      func() time.Time
}

// Option configures an Autodetector.
type Option func(*Autodetector)

// WithSimilarityConfig overrides the rename-detection thresholds.
func WithSimilarityConfig(config similarity.Config) Option {
	return func(a *Autodetector) {
		a.resolver = rename.NewResolver(similarity.NewScorer(config))
	}
}

// WithConstraintDeferral toggles foreign key cycle breaking.
func WithConstraintDeferral(enabled bool) Option {
	return func(a *Autodetector) {
		a.grapher = &graph.Grapher{DeferConstraints: enabled}
	}
}

// WithEmitter substitutes the operation emitter, typically to install a
// backend-specific RequiresRecreation predicate.
func WithEmitter(emitter *operations.Emitter) Option {
	return func(a *Autodetector) { a.emitter = emitter }
}

// WithPriorMigrations installs the history lookup used to populate generated
// migration dependencies.
func WithPriorMigrations(priors PriorMigrations) Option {
	return func(a *Autodetector) { a.priors = priors }
}

// WithClock substitutes the clock used for fallback migration names.
func WithClock(now func() time.Time) Option {
	return func(a *Autodetector) { a.now = now }
}

// NewAutodetector creates an autodetector with default similarity settings
// and cycle breaking enabled.
func NewAutodetector(opts ...Option) *Autodetector {
	a := &Autodetector{
		differ:   diff.NewDiffer(),
		resolver: rename.NewResolver(similarity.NewScorer(similarity.DefaultConfig())),
		grapher:  graph.NewGrapher(),
		emitter:  operations.NewEmitter(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate detects the changes transforming old into new and packages them as
// one migration for app. A nil migration with a nil error means the snapshots
// agree and there is nothing to do.
//
// When app is non-empty, only operations touching that app are included;
// detection over a multi-app project is run once per app.
func (a *Autodetector) Generate(old, new *state.ProjectState, app, nameHint string) (*migration.Migration, error) {
	if err := old.Validate(); err != nil {
		return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("old state invalid: %w", err)}
	}
	if err := new.Validate(); err != nil {
		return nil, &Error{Stage: StageValidate, Err: fmt.Errorf("new state invalid: %w", err)}
	}

	raw := a.differ.Diff(old, new)
	if raw.Empty() {
		return nil, nil
	}
	resolved := a.resolver.Resolve(raw)

	ordered, err := a.grapher.Order(resolved)
	if err != nil {
		return nil, &Error{Stage: StageOrder, Err: err}
	}
	ops, err := a.emitter.Emit(ordered)
	if err != nil {
		return nil, &Error{Stage: StageEmit, Err: err}
	}
	if app != "" {
		ops = filterByApp(ops, app)
	}
	if len(ops) == 0 {
		return nil, nil
	}

	m := &migration.Migration{
		App:        app,
		Name:       a.name(ops, nameHint),
		Operations: ops,
		Atomic:     true,
	}
	m.Dependencies = a.dependencies(app, ops)
	return m, nil
}

// name picks the migration name: the caller's hint, a descriptive name when
// the migration has a single recognizable shape, else a timestamp.
func (a *Autodetector) name(ops []operations.Operation, hint string) string {
	if hint != "" {
		return hint
	}
	if len(ops) == 1 {
		switch op := ops[0].(type) {
		case *operations.CreateTable:
			return "create_" + strings.ToLower(op.Model.Name)
		case *operations.DeleteTable:
			return "delete_" + strings.ToLower(op.Model.Name)
		case *operations.RenameTable:
			return fmt.Sprintf("rename_%s_%s", strings.ToLower(op.OldName), strings.ToLower(op.NewName))
		case *operations.AddField:
			return fmt.Sprintf("add_%s_to_%s", op.Field.Name, strings.ToLower(op.Model.Name))
		case *operations.RemoveField:
			return fmt.Sprintf("remove_%s_from_%s", op.Field.Name, strings.ToLower(op.Model.Name))
		case *operations.RenameField:
			return fmt.Sprintf("rename_%s_%s_on_%s", op.OldName, op.NewName, strings.ToLower(op.Model.Name))
		case *operations.AlterField:
			return fmt.Sprintf("alter_%s_on_%s", op.New.Name, strings.ToLower(op.Model.Name))
		case *operations.AddManyToMany:
			return fmt.Sprintf("add_%s_to_%s", op.Meta.FieldName, strings.ToLower(op.Meta.FromModel))
		case *operations.RemoveManyToMany:
			return fmt.Sprintf("remove_%s_from_%s", op.Meta.FieldName, strings.ToLower(op.Meta.FromModel))
		}
	}
	return "auto_" + a.now().UTC().Format("20060102_1504")
}

// dependencies links the migration to the latest prior migration of its own
// app plus those of every other app its operations reference.
func (a *Autodetector) dependencies(app string, ops []operations.Operation) []migration.Ref {
	if a.priors == nil {
		return nil
	}
	apps := make(map[string]bool)
	if app != "" {
		apps[app] = true
	}
	for _, op := range ops {
		for _, touched := range touchedApps(op) {
			apps[touched] = true
		}
	}

	names := make([]string, 0, len(apps))
	for name := range apps {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []migration.Ref
	for _, name := range names {
		if ref, ok := a.priors(name); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// operationApp returns the app an operation belongs to, or "" for raw
// SQL/Go operations that have no model.
func operationApp(op operations.Operation) string {
	switch op := op.(type) {
	case *operations.CreateTable:
		return op.Model.AppLabel
	case *operations.DeleteTable:
		return op.Model.AppLabel
	case *operations.RenameTable:
		return op.App
	case *operations.AddField:
		return op.Model.App
	case *operations.RemoveField:
		return op.Model.App
	case *operations.RenameField:
		return op.Model.App
	case *operations.AlterField:
		return op.Model.App
	case *operations.AddIndex:
		return op.Model.App
	case *operations.RemoveIndex:
		return op.Model.App
	case *operations.AddConstraint:
		return op.Model.App
	case *operations.RemoveConstraint:
		return op.Model.App
	case *operations.AddManyToMany:
		return op.Meta.FromApp
	case *operations.RemoveManyToMany:
		return op.Meta.FromApp
	}
	return ""
}

// touchedApps returns the operation's own app plus any apps its relations
// reference.
func touchedApps(op operations.Operation) []string {
	var apps []string
	if own := operationApp(op); own != "" {
		apps = append(apps, own)
	}
	collect := func(fields ...*state.FieldState) {
		for _, field := range fields {
			if field != nil && field.Relation != nil {
				apps = append(apps, field.Relation.TargetApp)
			}
		}
	}
	switch op := op.(type) {
	case *operations.CreateTable:
		collect(op.Model.Fields...)
	case *operations.AddField:
		collect(op.Field)
	case *operations.AlterField:
		collect(op.New)
	case *operations.AddConstraint:
		collect(op.Column)
	case *operations.AddManyToMany:
		apps = append(apps, op.Meta.ToApp)
	}
	return apps
}

func filterByApp(ops []operations.Operation, app string) []operations.Operation {
	kept := make([]operations.Operation, 0, len(ops))
	for _, op := range ops {
		if operationApp(op) == app {
			kept = append(kept, op)
		}
	}
	return kept
}
