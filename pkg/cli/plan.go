package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/platinummonkey/automigrate/pkg/executor"
	"github.com/platinummonkey/automigrate/pkg/repository"
)

func newPlanCommand() *Command {
	cmd := &Command{
		Name:        "plan",
		Description: "Show pending migrations and their operations",
		Flags:       flag.NewFlagSet("plan", flag.ExitOnError),
		Run:         runPlan,
	}

	cmd.Flags.String("config", "automigrate.yaml", "Config file path")

	return cmd
}

func runPlan(args []string) error {
	cmd := newPlanCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(cmd.Flags.Lookup("config").Value.String())
	if err != nil {
		return err
	}

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

	fmt.Printf("Pending migrations (%d):\n", len(plan))
	for _, m := range plan {
		fmt.Printf("  %s\n", m.ID())
		for _, op := range m.Operations {
			fmt.Printf("    - %s\n", op.Describe())
		}
	}
	return nil
}
