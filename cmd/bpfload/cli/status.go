package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/netbpf/bpfload/store"
)

// StatusCmd prints the most recent run from the manifest database.
type StatusCmd struct {
	DB string `name:"db" help:"Override the manifest database path."`
}

// Run executes the status command.
func (c *StatusCmd) Run(cli *CLI) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}

	dbPath := cfg.Store.Path
	if c.DB != "" {
		dbPath = c.DB
	}
	if dbPath == "" {
		return fmt.Errorf("no manifest database configured")
	}

	ctx := context.Background()
	s, err := store.Open(ctx, dbPath, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	run, objects, err := s.LastRun(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		fmt.Println("No runs recorded.")
		return nil
	}
	if err != nil {
		return err
	}

	outcome := "FAILED"
	if run.Succeeded {
		outcome = "ok"
	}
	fmt.Printf("run %d  %s  loader=%d kernel=%s  elapsed=%s  %s\n",
		run.ID,
		run.StartedAt.Local().Format(time.RFC3339),
		run.LoaderVersion,
		run.Kernel,
		run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond),
		outcome)

	for _, o := range objects {
		status := "loaded"
		if o.Error != "" {
			status = "error: " + o.Error
		}
		fmt.Printf("  %-16s  %-16s  %s  %s\n", o.Object, o.Prefix, o.Path, status)
	}
	return nil
}
