package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/claude-swarm/orchestrator/internal/config"
	"github.com/claude-swarm/orchestrator/internal/store"
)

var watchSchedule string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-shot snapshot of issue and worker counts",
	Long: `Opens the store (applying any pending schema changes, as run does)
and prints aggregate counts of issues by
status, workers by status, and the average turns used across completed
workers.

With --watch, re-prints the snapshot on a cron schedule instead of
exiting after one. The schedule is a standard 5-field cron expression
("*/30 * * * *" for every 30 minutes); it is validated before the first
snapshot is printed.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&watchSchedule, "watch", "",
		`re-print the snapshot on this cron schedule (e.g. "*/5 * * * *") instead of exiting`)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	st, err := store.Open(cmd.Context(), cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if watchSchedule == "" {
		return printSnapshot(cmd.Context(), st)
	}
	return watchSnapshot(cmd.Context(), st, watchSchedule)
}

func printSnapshot(ctx context.Context, st *store.Store) error {
	m, err := st.AggregateMetrics(ctx)
	if err != nil {
		return fmt.Errorf("computing metrics: %w", err)
	}
	fmt.Printf("issues by status:  %v\n", m.IssuesByStatus)
	fmt.Printf("workers by status: %v\n", m.WorkersByStatus)
	fmt.Printf("avg turns used:    %.1f\n", m.AvgTurnsUsed)
	return nil
}

// watchSnapshot re-renders the snapshot on schedule. Its parser takes
// the same five fields as the dashboard's metrics log, but unlike that
// one it does not accept @-descriptors such as "@hourly".
func watchSnapshot(ctx context.Context, st *store.Store, schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid --watch schedule %q: %w", schedule, err)
	}

	if err := printSnapshot(ctx, st); err != nil {
		return err
	}

	next := sched.Next(time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
			fmt.Println("---")
			if err := printSnapshot(ctx, st); err != nil {
				return err
			}
			next = sched.Next(time.Now())
		}
	}
}
