package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/flemzord/relayclaw/internal/security"
)

const registerTimeout = 30 * time.Second

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = security.SanitizedEnv()
	return cmd.CombinedOutput()
}

// Registrar adds and removes the server in the CLI's user-scope MCP
// configuration.
type Registrar struct {
	// ClaudePath is the CLI executable, "claude" when empty.
	ClaudePath string
	Run        CommandRunner
	Logger     *slog.Logger
}

func (r *Registrar) defaults() (string, CommandRunner, *slog.Logger) {
	path, run, logger := r.ClaudePath, r.Run, r.Logger
	if path == "" {
		path = "claude"
	}
	if run == nil {
		run = execRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return path, run, logger
}

// Register points the CLI at url under name. A previous registration under
// the same name is replaced.
func (r *Registrar) Register(ctx context.Context, name, url string) error {
	path, run, logger := r.defaults()
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	// "mcp add" refuses an existing name.
	_, _ = run(ctx, path, "mcp", "remove", "--scope", "user", name)

	out, err := run(ctx, path, "mcp", "add", "--transport", "http", "--scope", "user", name, url)
	if err != nil {
		return fmt.Errorf("mcpserver: register %q: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	logger.Info("mcpserver: registered with backend", "name", name, "url", url)
	return nil
}

// Unregister removes the registration.
func (r *Registrar) Unregister(ctx context.Context, name string) error {
	path, run, logger := r.defaults()
	ctx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()

	out, err := run(ctx, path, "mcp", "remove", "--scope", "user", name)
	if err != nil {
		return fmt.Errorf("mcpserver: unregister %q: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	logger.Info("mcpserver: unregistered from backend", "name", name)
	return nil
}
