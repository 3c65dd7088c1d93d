package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/relayclaw/pkg/app"
)

const serviceName = "relayclaw"

// program adapts app.Run to the service manager's start/stop callbacks.
type program struct {
	configPath string
	cancel     context.CancelFunc
	done       chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- app.Run(ctx, app.RunParams{ConfigPath: p.configPath, Version: version})
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

// serviceConfig runs the installed unit as "relayclaw service run" with
// an absolute config path, since the manager's working directory is not
// the user's.
func serviceConfig(configPath string) (*service.Config, error) {
	args := []string{"service", "run"}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	return &service.Config{
		Name:        serviceName,
		DisplayName: "relayclaw",
		Description: "Relays a Telegram chat to the claude CLI.",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	}, nil
}

func newService(configPath string) (service.Service, error) {
	cfg, err := serviceConfig(configPath)
	if err != nil {
		return nil, err
	}
	svc, err := service.New(&program{configPath: configPath}, cfg)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	return svc, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage relayclaw as a background service",
	}

	for _, action := range []struct{ use, short string }{
		{"install", "Install the user service"},
		{"uninstall", "Remove the user service"},
		{"start", "Start the installed service"},
		{"stop", "Stop the installed service"},
		{"restart", "Restart the installed service"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := newService(configFlag(cmd))
				if err != nil {
					return err
				}
				if err := service.Control(svc, action.use); err != nil {
					return fmt.Errorf("service %s: %w", action.use, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s: ok\n", action.use)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the service is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(configFlag(cmd))
			if err != nil {
				return err
			}
			st, err := svc.Status()
			if err != nil && !errors.Is(err, service.ErrNotInstalled) {
				return fmt.Errorf("service status: %w", err)
			}
			return printStatus(cmd.OutOrStdout(), st, err)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(configFlag(cmd))
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func printStatus(w io.Writer, st service.Status, err error) error {
	text := "unknown"
	switch {
	case errors.Is(err, service.ErrNotInstalled):
		text = "not installed"
	case st == service.StatusRunning:
		text = "running"
	case st == service.StatusStopped:
		text = "stopped"
	}
	_, werr := fmt.Fprintf(w, "Service %s: %s\n", serviceName, text)
	return werr
}
