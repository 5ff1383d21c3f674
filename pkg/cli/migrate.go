package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/executor"
	"github.com/platinummonkey/automigrate/pkg/migration"
	"github.com/platinummonkey/automigrate/pkg/repository"
	"github.com/platinummonkey/automigrate/pkg/state"
)

func newMigrateCommand() *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending migrations to the database",
		Flags:       flag.NewFlagSet("migrate", flag.ExitOnError),
		Run:         runMigrate,
	}

	cmd.Flags.String("config", "automigrate.yaml", "Config file path")
	cmd.Flags.Bool("fake", false, "Record migrations as applied without running their SQL")

	return cmd
}

func runMigrate(args []string) error {
	cmd := newMigrateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(cmd.Flags.Lookup("config").Value.String())
	if err != nil {
		return err
	}
	fake := cmd.Flags.Lookup("fake").Value.String() == "true"

	db, dialect, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	exec := executor.NewExecutor(db, dialect)
	ctx := context.Background()

	available, err := repository.NewRepository(cfg.MigrationsDir).LoadAll()
	if err != nil {
		return err
	}
	if err := exec.Recorder().EnsureSchema(ctx); err != nil {
		return err
	}
	applied, err := exec.Recorder().Applied(ctx)
	if err != nil {
		return err
	}

	plan, err := exec.Plan(available, applied)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		fmt.Println("Nothing to apply")
		return nil
	}

	project, err := replayApplied(available, applied)
	if err != nil {
		return err
	}

	for _, m := range plan {
		fmt.Printf("Applying %s...\n", m.ID())
	}
	if err := exec.Apply(ctx, plan, project, fake); err != nil {
		return err
	}
	fmt.Printf("Applied %d migration(s)\n", len(plan))
	return nil
}

// openDatabase opens a connection for the configured backend. The driver must
// be linked into the binary; cmd/automigrate imports postgres and sqlite.
func openDatabase(cfg *Config) (*sql.DB, executor.Dialect, error) {
	dialect, err := executor.DialectByName(cfg.Database.Backend)
	if err != nil {
		return nil, nil, err
	}

	driver := cfg.Database.Backend
	switch driver {
	case "postgresql":
		driver = "postgres"
	case "sqlite":
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Backend, err)
	}
	return db, dialect, nil
}

// replayApplied rebuilds the in-memory schema from the already-applied subset
// of the plan files, in recorded order. The executor replays pending
// migrations on top as it runs them.
func replayApplied(available []*migration.Migration, applied []migration.Ref) (*state.ProjectState, error) {
	byRef := make(map[migration.Ref]*migration.Migration, len(available))
	for _, m := range available {
		byRef[m.Ref()] = m
	}

	project := state.NewProjectState()
	for _, ref := range applied {
		m, ok := byRef[ref]
		if !ok {
			return nil, fmt.Errorf("applied migration %s has no plan file", ref)
		}
		if err := m.Apply(project); err != nil {
			return nil, err
		}
	}
	return project, nil
}
