package cli

import (
	"flag"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/automigrate/pkg/autodetect"
	"github.com/platinummonkey/automigrate/pkg/executor"
	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/operations"
	"github.com/platinummonkey/automigrate/pkg/repository"
	"github.com/platinummonkey/automigrate/pkg/state"
)

func newMakeMigrationsCommand() *Command {
	cmd := &Command{
		Name:        "makemigrations",
		Description: "Detect model changes and write migration plan files",
		Flags:       flag.NewFlagSet("makemigrations", flag.ExitOnError),
		Run:         runMakeMigrations,
	}

	cmd.Flags.String("config", "automigrate.yaml", "Config file path")
	cmd.Flags.String("app", "", "Only generate migrations for this app")
	cmd.Flags.String("name", "", "Migration name (default: derived from the changes)")
	cmd.Flags.Bool("dry-run", false, "Print detected operations without writing plan files")
	cmd.Flags.Bool("watch", false, "Keep running, re-detecting when the models file changes")

	return cmd
}

func runMakeMigrations(args []string) error {
	cmd := newMakeMigrationsCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(cmd.Flags.Lookup("config").Value.String())
	if err != nil {
		return err
	}
	app := cmd.Flags.Lookup("app").Value.String()
	name := cmd.Flags.Lookup("name").Value.String()
	dryRun := cmd.Flags.Lookup("dry-run").Value.String() == "true"
	watch := cmd.Flags.Lookup("watch").Value.String() == "true"

	if watch {
		return watchModels(cfg, app, name, dryRun)
	}
	return detectAndWrite(cfg, app, name, dryRun)
}

// detectAndWrite runs one detection pass: rebuild the recorded state, load
// the declared snapshot, diff, and write one plan file per changed app.
func detectAndWrite(cfg *Config, app, name string, dryRun bool) error {
	repo := repository.NewRepository(cfg.MigrationsDir)

	recorded, err := repo.LoadAll()
	if err != nil {
		return err
	}
	old, err := repository.RebuildState(recorded)
	if err != nil {
		return err
	}
	new, err := repository.LoadSnapshot(cfg.ModelsFile)
	if err != nil {
		return err
	}

	dialect, err := executor.DialectByName(cfg.Database.Backend)
	if err != nil {
		return err
	}
	detector := autodetect.NewAutodetector(
		autodetect.WithSimilarityConfig(cfg.SimilarityConfig()),
		autodetect.WithEmitter(&operations.Emitter{RequiresRecreation: dialect.RequiresRecreation}),
		autodetect.WithPriorMigrations(latestPerApp(recorded)),
	)

	apps := []string{app}
	if app == "" {
		apps = appLabels(old, new)
	}

	changes := false
	for _, label := range apps {
		m, err := detector.Generate(old, new, label, name)
		if err != nil {
			return err
		}
		if m == nil {
			continue
		}
		changes = true

		sequenced, err := repo.SequencedName(label, m.Name)
		if err != nil {
			return err
		}
		m.Name = sequenced

		fmt.Printf("Migrations for %s:\n", label)
		for _, op := range m.Operations {
			fmt.Printf("  - %s\n", op.Describe())
		}
		if dryRun {
			continue
		}
		path, err := repo.Save(m)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)

		// Later apps in the same pass depend on what was just written.
		if err := m.Apply(old); err != nil {
			return err
		}
		recorded = append(recorded, m)
		detector = autodetect.NewAutodetector(
			autodetect.WithSimilarityConfig(cfg.SimilarityConfig()),
			autodetect.WithEmitter(&operations.Emitter{RequiresRecreation: dialect.RequiresRecreation}),
			autodetect.WithPriorMigrations(latestPerApp(recorded)),
		)
	}
	if !changes {
		fmt.Println("No changes detected")
	}
	return nil
}

// watchModels re-runs detection whenever the models file is written.
func watchModels(cfg *Config, app, name string, dryRun bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which would drop a
	// watch on the file itself.
	dir := filepath.Dir(cfg.ModelsFile)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if err := detectAndWrite(cfg, app, name, dryRun); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
	fmt.Printf("Watching %s for changes...\n", cfg.ModelsFile)

	target, err := filepath.Abs(cfg.ModelsFile)
	if err != nil {
		return err
	}
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed, err := filepath.Abs(event.Name)
			if err != nil || changed != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := detectAndWrite(cfg, app, name, dryRun); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("Watch error: %v\n", err)
		}
	}
}

// latestPerApp builds the prior-migration lookup from recorded plan files.
// Plan files are sequence-prefixed, so the lexicographically largest name per
// app is the latest.
func latestPerApp(recorded []*migration.Migration) autodetect.PriorMigrations {
	latest := make(map[string]migration.Ref)
	for _, m := range recorded {
		if current, ok := latest[m.App]; !ok || m.Name > current.Name {
			latest[m.App] = m.Ref()
		}
	}
	return func(app string) (migration.Ref, bool) {
		ref, ok := latest[app]
		return ref, ok
	}
}

// appLabels returns every app present in either snapshot, sorted.
func appLabels(old, new *state.ProjectState) []string {
	seen := make(map[string]bool)
	for _, key := range old.Keys() {
		seen[key.App] = true
	}
	for _, key := range new.Keys() {
		seen[key.App] = true
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
