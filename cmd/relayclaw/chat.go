package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flemzord/relayclaw/internal/config"
	"github.com/flemzord/relayclaw/modules/channel/console"
	"github.com/flemzord/relayclaw/pkg/app"
)

func chatCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the relay from this terminal instead of Telegram",
		Long: "Runs the relay with a local console as its only transport. Memory, jobs " +
			"and the timezone are shared with the bot, so the bot must not be running.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			term, err := console.New(console.Options{
				HistoryFile: filepath.Join(config.DefaultStateDir(), "chat_history"),
				OnExit:      stop,
			})
			if err != nil {
				return err
			}

			return app.Run(ctx, app.RunParams{
				ConfigPath: configFlag(cmd),
				Version:    version,
				Transport:  term,
				Open: app.OpenOptions{
					LogOutput: os.Stderr,
					LogLevel:  logLevel,
					Channel:   "console",
				},
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level while chatting")
	return cmd
}
