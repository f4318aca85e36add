package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schoolfacts/internal/runner"
	"github.com/JonMunkholm/schoolfacts/internal/web"
)

var withSchedule bool

// serveCmd starts the monitor API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP monitor API",
	Long:  `Serve the monitor API. With --schedule the interval scheduler runs in the same process and shares the run slot.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, st, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var sched *runner.Scheduler
		if withSchedule {
			sched = runner.NewScheduler(r, cfg.Schedule.Interval, cfg.Schedule.RunOnStart)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			slog.Info("scheduler started", "interval", cfg.Schedule.Interval)
		}

		server := web.NewServer(r, cfg.Server)

		// Graceful shutdown
		shutdownDone := make(chan struct{})
		go func() {
			defer close(shutdownDone)
			<-ctx.Done()
			slog.Info("shutting down...")

			if sched != nil {
				sched.Stop()
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}
		}()

		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-shutdownDone
			return err
		}
		<-shutdownDone
		drain(r)
		slog.Info("server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withSchedule, "schedule", false, "Also run the pipeline every SCHEDULE_INTERVAL")
}
