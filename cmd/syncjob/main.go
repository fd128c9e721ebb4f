package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/marketsync/internal/bootstrap"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "syncjob",
	Short: "Run marketsync jobs once",
	Long: `Run one or more sync jobs immediately and exit.

Intended for cron, CI smoke checks and manual catch-up after an outage.
The exit status is non-zero when any job run fails.`,
	Version:       bootstrap.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Print run summaries as JSON")

	rootCmd.AddCommand(
		jobCommand(scheduler.JobFetchOrders, "Import open orders from the marketplace"),
		jobCommand(scheduler.JobPollTracking, "Poll the carrier for every open consignment"),
		jobCommand(scheduler.JobImportFeed, "Import pending carrier batch feed files"),
		&cobra.Command{
			Use:   "all",
			Short: "Run fetch-orders, import-feed and poll-tracking in that order",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runJobs(cmd, scheduler.JobFetchOrders, scheduler.JobImportFeed, scheduler.JobPollTracking)
			},
		},
	)
}

func jobCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJobs(cmd, name)
		},
	}
}

func runJobs(cmd *cobra.Command, names ...string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()

	failed := 0
	for _, name := range names {
		run, err := app.Scheduler.RunNow(ctx, name)
		if run == nil {
			return err
		}
		if err != nil || run.Status == scheduler.RunStatusFailed {
			failed++
		}
		if err := printRun(cmd, run, asJSON); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(names))
	}
	return nil
}

type runSummary struct {
	Job       string `json:"job"`
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
	Detail    any    `json:"detail,omitempty"`
}

func printRun(cmd *cobra.Command, run *scheduler.JobRun, asJSON bool) error {
	s := runSummary{
		Job:       run.Job,
		Status:    string(run.Status),
		Processed: run.Result.Processed,
		Failed:    run.Result.Failed,
		Skipped:   run.Result.Skipped,
		Duration:  run.Duration().String(),
		Error:     run.Error,
		Detail:    run.Result.Detail,
	}
	out := cmd.OutOrStdout()
	if asJSON {
		return json.NewEncoder(out).Encode(s)
	}
	_, err := fmt.Fprintf(out, "%-14s %-8s processed=%d failed=%d skipped=%d took=%s\n",
		s.Job, s.Status, s.Processed, s.Failed, s.Skipped, s.Duration)
	if err == nil && s.Error != "" {
		_, err = fmt.Fprintf(out, "  error: %s\n", s.Error)
	}
	return err
}
