package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/relayclaw/internal/config"
)

// initAnswers holds what the wizard collects.
type initAnswers struct {
	Token      string
	UserID     string
	Timezone   string
	StateDir   string
	Memory     bool
	Scheduling bool
	Gateway    bool
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Timezone:   config.DefaultTimezone,
		StateDir:   config.DefaultStateDir(),
		Memory:     true,
		Scheduling: true,
	}
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configFlag(cmd)
			if path == "" {
				candidates := config.SearchPaths()
				path = candidates[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if err := runWizard(&answers); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
					return nil
				}
				return err
			}
			if err := writeConfig(path, answers); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nCheck it with: relayclaw config check %s\n", path, path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func runWizard(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("relayclaw setup").
				Description("Connects one Telegram user to the claude CLI.\nCreate a bot with @BotFather first."),
			huh.NewInput().
				Title("Bot token").
				EchoMode(huh.EchoModePassword).
				Value(&a.Token).
				Validate(validateToken),
			huh.NewInput().
				Title("Your Telegram user id").
				Description("Send /start to @userinfobot to find it.").
				Value(&a.UserID).
				Validate(validateUserID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Timezone").
				Description("IANA name used for one-time jobs, e.g. Europe/Paris.").
				Value(&a.Timezone).
				Validate(validateZone),
			huh.NewInput().
				Title("State directory").
				Value(&a.StateDir),
			huh.NewConfirm().
				Title("Remember facts between conversations?").
				Value(&a.Memory),
			huh.NewConfirm().
				Title("Enable scheduled prompts?").
				Value(&a.Scheduling),
			huh.NewConfirm().
				Title("Enable the local HTTP gateway?").
				Description("Serves /health, /metrics and a small API on 127.0.0.1.").
				Value(&a.Gateway),
		),
	)
	return form.Run()
}

func validateToken(s string) error {
	id, hash, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || id == "" || hash == "" {
		return errors.New("expected <bot_id>:<hash>")
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return errors.New("bot id must be numeric")
	}
	return nil
}

func validateUserID(s string) error {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil || n <= 0 {
		return errors.New("user id must be a positive number")
	}
	return nil
}

func validateZone(s string) error {
	if _, err := time.LoadLocation(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("unknown timezone %q", s)
	}
	return nil
}

// fileConfig is the subset of the configuration the wizard writes.
type fileConfig struct {
	Version    string         `yaml:"version"`
	StateDir   string         `yaml:"state_dir"`
	Telegram   telegramConfig `yaml:"telegram"`
	Memory     toggle         `yaml:"memory"`
	Scheduling scheduling     `yaml:"scheduling"`
	Gateway    *gatewayConfig `yaml:"gateway,omitempty"`
}

type telegramConfig struct {
	Token  string `yaml:"token"`
	UserID int64  `yaml:"user_id"`
}

type toggle struct {
	Enabled bool `yaml:"enabled"`
}

type scheduling struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
}

type gatewayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Auth    struct {
		BearerToken string `yaml:"bearer_token"`
	} `yaml:"auth"`
}

func renderConfig(a initAnswers) ([]byte, error) {
	userID, err := strconv.ParseInt(strings.TrimSpace(a.UserID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	fc := fileConfig{
		Version:    "1",
		StateDir:   strings.TrimSpace(a.StateDir),
		Telegram:   telegramConfig{Token: strings.TrimSpace(a.Token), UserID: userID},
		Memory:     toggle{Enabled: a.Memory},
		Scheduling: scheduling{Enabled: a.Scheduling, Timezone: strings.TrimSpace(a.Timezone)},
	}
	if a.Gateway {
		gw := &gatewayConfig{Enabled: true, Bind: config.DefaultGatewayBind}
		gw.Auth.BearerToken = strings.ReplaceAll(uuid.NewString(), "-", "")
		fc.Gateway = gw
	}
	return yaml.Marshal(fc)
}

func writeConfig(path string, a initAnswers) error {
	out, err := renderConfig(a)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	// The file holds the bot token.
	return os.WriteFile(path, out, 0o600)
}
