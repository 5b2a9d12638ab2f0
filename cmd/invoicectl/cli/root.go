// Package cli implements the invoicectl operator commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Koushith/Web3-Invoice-sub000/internal/app"
	"github.com/Koushith/Web3-Invoice-sub000/internal/platform/db"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
	"github.com/Koushith/Web3-Invoice-sub000/jobs"
	"github.com/Koushith/Web3-Invoice-sub000/migrations"
)

// Deps lets tests replace the process-level collaborators.
type Deps struct {
	LoadConfig func() (*app.Config, error)
	NewJobs    func(redisAddr string) *JobsCLI
}

func (d Deps) withDefaults() Deps {
	if d.LoadConfig == nil {
		d.LoadConfig = app.LoadConfig
	}
	if d.NewJobs == nil {
		d.NewJobs = NewJobsCLI
	}
	return d
}

// NewRootCommand builds the invoicectl command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	deps = deps.withDefaults()
	root := &cobra.Command{
		Use:           "invoicectl",
		Short:         "Operator tooling for the invoicing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCommand(deps),
		newJobsCommand(deps),
		newRecurrenceCommand(deps),
		newIdempotencyCommand(deps),
	)
	return root
}

func newMigrateCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			pool, err := db.New(cmd.Context(), db.Config{DSN: cfg.PGDSN, MaxConns: 2, ApplicationName: "invoicectl"})
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := migrations.Up(cmd.Context(), pool, logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", v)
			}
			return nil
		},
	}
}

func newJobsCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	withJobs := func(run func(cmd *cobra.Command, c *JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			c := deps.NewJobs(cfg.RedisAddr)
			defer c.Close()
			return run(cmd, c, args)
		}
	}

	trigger := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a periodic job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskRecurrenceRun, jobs.TaskOverdueSweep, jobs.TaskChainSync},
		RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	}

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Print queue counters",
		RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			stats, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		}),
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			infos, err := c.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		}),
	}
	scheduled.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	cmd.AddCommand(trigger, inspect, scheduled)
	return cmd
}

func newRecurrenceCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurrence",
		Short: "Recurring invoice operations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Generate every recurring invoice that is due, in-process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.NewLogger(cfg)
			services, err := app.NewServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer services.Close()
			summary, err := services.Scheduler.Run(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	})
	return cmd
}

func newIdempotencyCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempotency",
		Short: "Idempotency key maintenance",
	}
	var olderThan time.Duration
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete idempotency keys older than the given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), db.Config{DSN: cfg.PGDSN, MaxConns: 2, ApplicationName: "invoicectl"})
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := shared.NewIdempotencyStore(pool).Cleanup(cmd.Context(), olderThan); err != nil {
				return err
			}
			slog.Default().Info("idempotency keys pruned", slog.Duration("older_than", olderThan))
			return nil
		},
	}
	cleanup.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "minimum key age to delete")
	cmd.AddCommand(cleanup)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
