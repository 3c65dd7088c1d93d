// Package main is the entry point for the relayclaw CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/relayclaw/internal/config"
	"github.com/flemzord/relayclaw/internal/core"
	"github.com/flemzord/relayclaw/internal/security"
	"github.com/flemzord/relayclaw/pkg/app"

	// Embedded zone database so /timezone works on minimal hosts.
	_ "time/tzdata"

	// Compiled-in modules.
	_ "github.com/flemzord/relayclaw/modules/channel/telegram"
	_ "github.com/flemzord/relayclaw/modules/history/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relayclaw",
		Short:         "Relay a Telegram chat to the claude CLI, with memory and scheduled prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		initCmd(),
		chatCmd(),
		cronCmd(),
		serviceCmd(),
		mcpCmd(),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func configFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "relayclaw %s (commit: %s, built: %s)\n", version, commit, date)
	mods := core.GetModules()
	if len(mods) == 0 {
		fmt.Fprintln(w, "\nNo compiled modules.")
		return
	}
	fmt.Fprintln(w, "\nCompiled modules:")
	for _, mod := range mods {
		fmt.Fprintf(w, "  %s\n", mod.ID)
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the relay with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return app.Run(ctx, app.RunParams{ConfigPath: configFlag(cmd), Version: version})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and print it with secrets redacted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := configFlag(cmd)
			if len(args) == 1 {
				explicit = args[0]
			}
			return checkConfig(cmd.OutOrStdout(), explicit)
		},
	})
	return cmd
}

func checkConfig(w io.Writer, explicit string) error {
	cfg, path, err := app.LoadConfig(explicit)
	if err != nil {
		return err
	}

	ids := config.Resolve(cfg)
	fmt.Fprintf(w, "Configuration OK: %s (%d modules)\n", path, len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	redactor := security.NewRedactor()
	if token := cfg.Gateway.Auth.BearerToken; token != "" {
		redactor.AddLiteral(token)
	}
	redactor.RedactMap(tree)

	out, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s", out)
	return nil
}
