package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/flemzord/relayclaw/internal/config"
	"github.com/flemzord/relayclaw/internal/cron"
	"github.com/flemzord/relayclaw/internal/relay"
	"github.com/flemzord/relayclaw/internal/timezone"
	"github.com/flemzord/relayclaw/pkg/app"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Inspect scheduled jobs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List scheduled jobs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := app.LoadConfig(configFlag(cmd))
				if err != nil {
					return err
				}
				return listJobs(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "test <n>",
			Short: "Run job n now and print the reply",
			Long:  "Runs a job through the backend without touching its schedule. The bot must not be running.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("job number must be a positive integer, got %q", args[0])
				}
				ctx, stop := signalContext(cmd.Context())
				defer stop()
				return testJob(ctx, cmd.OutOrStdout(), configFlag(cmd), n)
			},
		},
	)
	return cmd
}

// listJobs reads the state files without taking the lock, so it works
// next to a running bot.
func listJobs(w io.Writer, cfg *config.Config) error {
	if !cfg.Scheduling.IsEnabled() {
		_, err := fmt.Fprintln(w, relay.Describe(relay.ErrSchedulingDisabled))
		return err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := cron.OpenStore(cron.StoreOptions{Path: cfg.StatePath(app.JobsFile), Logger: logger})
	tz := timezone.OpenSetting(cfg.StatePath(app.TimezoneFile), cfg.Scheduling.Timezone, logger)

	_, err := fmt.Fprintln(w, relay.FormatJobs(jobs.List(), tz.Name()))
	return err
}

func testJob(ctx context.Context, w io.Writer, explicit string, n int) error {
	cfg, _, err := app.LoadConfig(explicit)
	if err != nil {
		return err
	}
	stack, err := app.Open(cfg, app.OpenOptions{Version: version, LogOutput: os.Stderr, LogLevel: "warn", Channel: "cli"})
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close() }()

	if stack.Dispatcher == nil {
		return relay.ErrSchedulingDisabled
	}
	printer := relay.NotifierFunc(func(_ context.Context, text string) error {
		_, err := fmt.Fprintln(w, text)
		return err
	})
	if err := stack.Notifier.Register("stdout", printer); err != nil {
		return err
	}

	out, err := stack.Dispatcher.TestFire(ctx, n)
	if out.Suppress {
		fmt.Fprintln(w, "(the job chose not to reply)")
	}
	return err
}
