package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schoolfacts/internal/runner"
)

// scheduleCmd runs the pipeline every SCHEDULE_INTERVAL until interrupted
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a fixed interval",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, st, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sched := runner.NewScheduler(r, cfg.Schedule.Interval, cfg.Schedule.RunOnStart)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		slog.Info("scheduler started", "interval", cfg.Schedule.Interval, "next_run", sched.NextRun())

		<-ctx.Done()
		slog.Info("shutting down...")
		sched.Stop()
		drain(r)
		return nil
	},
}

// drain waits up to the shutdown timeout for an active run.
func drain(r *runner.Runner) {
	if !r.Busy() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("waiting for run to complete")
	if err := r.Drain(ctx); err == nil {
		slog.Info("run completed")
	}
}
