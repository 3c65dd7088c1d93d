package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/flemzord/relayclaw/internal/config"
	"github.com/flemzord/relayclaw/internal/mcpserver"
	"github.com/flemzord/relayclaw/pkg/app"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Manage the tool server registration with the claude CLI",
		Long: "The relay registers its tool server on start and removes it on stop. " +
			"These commands do it by hand, e.g. after a crash left a stale entry.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "register",
			Short: "Register the gateway-mounted tool server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := app.LoadConfig(configFlag(cmd))
				if err != nil {
					return err
				}
				url, err := registeredURL(cfg)
				if err != nil {
					return err
				}
				if err := registrar(cfg).Register(cmd.Context(), cfg.MCP.Name, url); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s at %s\n", cfg.MCP.Name, url)
				return nil
			},
		},
		&cobra.Command{
			Use:   "unregister",
			Short: "Remove the tool server from the claude CLI",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := app.LoadConfig(configFlag(cmd))
				if err != nil {
					return err
				}
				if err := registrar(cfg).Unregister(cmd.Context(), cfg.MCP.Name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unregistered %s\n", cfg.MCP.Name)
				return nil
			},
		},
	)
	return cmd
}

func registrar(cfg *config.Config) *mcpserver.Registrar {
	return &mcpserver.Registrar{
		ClaudePath: cfg.Backend.Path,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// registeredURL is where the CLI reaches the tool server between runs.
// Only the gateway has a stable address; the standalone server picks a
// port on every start.
func registeredURL(cfg *config.Config) (string, error) {
	if !cfg.MCP.IsEnabled() {
		return "", errors.New("mcp is disabled in the configuration")
	}
	if !cfg.Gateway.Enabled {
		return "", errors.New("manual registration needs gateway.enabled: the standalone tool server has no fixed port")
	}
	return app.MCPURL(cfg.Gateway.Bind)
}
