package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/flemzord/relayclaw/internal/security"
)

// Refresher renews the backend's stored credentials.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// exitSequence leaves the interactive CLI.
const exitSequence = "\x1b/exit\r"

// ScriptRefresher starts the CLI interactively under script(1), which
// gives it the terminal it needs. Starting the REPL renews an expired
// OAuth token; it is then told to exit, and signalled if it does not.
type ScriptRefresher struct {
	ClaudePath string
	WorkDir    string
	// ScriptPath defaults to "script".
	ScriptPath string
	// Grace is how long each shutdown step waits. Defaults to 5s.
	Grace  time.Duration
	Logger *slog.Logger
}

// Refresh runs one interactive session and waits for it to end.
func (r *ScriptRefresher) Refresh(ctx context.Context) error {
	scriptPath := r.ScriptPath
	if scriptPath == "" {
		scriptPath = "script"
	}
	claudePath := r.ClaudePath
	if claudePath == "" {
		claudePath = "claude"
	}
	grace := r.Grace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(scriptPath, "-qec", security.EscapeShellArg(claudePath), "/dev/null")
	cmd.Dir = r.WorkDir
	cmd.Env = append(security.SanitizedEnv(), "TERM=xterm-256color")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("backend: refresh: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("backend: refresh: start %s: %w", scriptPath, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if _, err := io.WriteString(stdin, exitSequence); err != nil {
		logger.Debug("backend: refresh: write exit sequence", "error", err)
	}
	_ = stdin.Close()

	wait := func() bool {
		select {
		case <-done:
			return true
		case <-time.After(grace):
			return false
		case <-ctx.Done():
			return false
		}
	}

	if wait() {
		logger.Info("backend: credential refresh session exited")
		return nil
	}
	if ctx.Err() == nil {
		logger.Warn("backend: refresh session still running, sending SIGTERM")
		_ = cmd.Process.Signal(syscall.SIGTERM)
		if wait() {
			return nil
		}
	}

	logger.Warn("backend: refresh session still running, killing")
	_ = cmd.Process.Kill()
	<-done
	if ctx.Err() != nil {
		return fmt.Errorf("backend: refresh: %w", ctx.Err())
	}
	return nil
}
