package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/flemzord/relayclaw/internal/security"
)

// DefaultTimeout bounds a single turn when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

const stderrTailBytes = 2000

var sessionIDPattern = regexp.MustCompile(`(?i)Session ID: ([a-f0-9-]+)`)

// Options configures a CLI invoker.
type Options struct {
	// Path is the claude executable. Defaults to "claude" on $PATH.
	Path    string
	Timeout time.Duration
	WorkDir string
	// AutoRefreshAuth enables one credential refresh and retry after an
	// authentication failure.
	AutoRefreshAuth bool
	// Secrets are redacted from the child environment.
	Secrets   []string
	Refresher Refresher
	// Audit records automatic credential refreshes. Optional.
	Audit  *security.AuditLogger
	Logger *slog.Logger
}

// CLI invokes the claude command line client.
type CLI struct {
	path        string
	timeout     time.Duration
	workDir     string
	autoRefresh bool
	secrets     []string
	refresher   Refresher
	audit       *security.AuditLogger
	logger      *slog.Logger
}

// Compile-time interface check.
var _ Invoker = (*CLI)(nil)

// NewCLI creates an invoker from opts, applying defaults.
func NewCLI(opts Options) *CLI {
	if opts.Path == "" {
		opts.Path = "claude"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Refresher == nil {
		opts.Refresher = &ScriptRefresher{ClaudePath: opts.Path, WorkDir: opts.WorkDir, Logger: opts.Logger}
	}
	return &CLI{
		path:        opts.Path,
		timeout:     opts.Timeout,
		workDir:     opts.WorkDir,
		autoRefresh: opts.AutoRefreshAuth,
		secrets:     opts.Secrets,
		refresher:   opts.Refresher,
		audit:       opts.Audit,
		logger:      opts.Logger,
	}
}

// Path returns the executable the invoker runs.
func (c *CLI) Path() string { return c.path }

// Invoke runs one turn. An authentication failure is retried exactly once
// after a credential refresh when AutoRefreshAuth is set; every other
// failure is returned as is.
func (c *CLI) Invoke(ctx context.Context, req Request) (Response, error) {
	resp, err := c.run(ctx, req)
	if err == nil || !c.autoRefresh || !IsAuthError(err) {
		return resp, err
	}

	c.logger.Warn("backend: authentication failed, refreshing credentials", "error", err)
	rerr := c.refresher.Refresh(ctx)
	event := security.AuditEvent{Type: security.EventCredentialRefresh, Source: "backend", Detail: "ok"}
	if rerr != nil {
		event.Detail = rerr.Error()
	}
	c.audit.Log(event)
	if rerr != nil {
		c.logger.Error("backend: credential refresh failed", "error", rerr)
		return resp, err
	}

	resp, err = c.run(ctx, req)
	if err != nil {
		return resp, err
	}
	resp.Refreshed = true
	c.logger.Info("backend: turn succeeded after credential refresh")
	return resp, nil
}

// BuildArgs returns the command line arguments for req.
func BuildArgs(req Request) []string {
	args := []string{"-p", req.Prompt, "--output-format", "text"}
	if req.SessionID != "" {
		if req.Resume {
			args = append(args, "--resume", req.SessionID)
		} else {
			args = append(args, "--session-id", req.SessionID)
		}
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.AllowedTools, ","))
	}
	for _, dir := range req.AddDirs {
		args = append(args, "--add-dir", dir)
	}
	return args
}

func (c *CLI) run(ctx context.Context, req Request) (Response, error) {
	// The prompt is a single argv entry.
	if err := security.ValidateMessageSize([]byte(req.Prompt), security.MaxArgBytes); err != nil {
		return Response{}, fmt.Errorf("backend: prompt: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.path, BuildArgs(req)...)
	cmd.Dir = c.workDir
	cmd.Env = security.SanitizedEnv(c.secrets...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("backend: invoking", "path", c.path, "resume", req.Resume, "prompt_len", len(req.Prompt))
	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("backend: invoke: %w", ctx.Err())
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("backend: process killed after timeout", "timeout", c.timeout)
			return Response{}, &TimeoutError{After: c.timeout}
		}
	}

	out, errOut := stdout.String(), stderr.String()
	if sig, ok := authFailure(runErr != nil, out, errOut); ok {
		return Response{}, &AuthError{Signature: sig, Output: tail(out+"\n"+errOut, stderrTailBytes)}
	}

	if runErr != nil {
		perr := &ProcessError{ExitCode: -1, Stderr: tail(errOut, stderrTailBytes), Err: runErr}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		if req.Resume && strings.Contains(out+errOut, "No conversation found") {
			perr.Err = fmt.Errorf("%w: %w", ErrSessionNotFound, runErr)
		}
		return Response{}, perr
	}

	sessionID := req.SessionID
	if m := sessionIDPattern.FindStringSubmatch(errOut); m != nil {
		sessionID = m[1]
	}

	c.logger.Debug("backend: turn completed", "duration", elapsed, "output_len", len(out))
	return Response{
		Text:      strings.TrimSpace(out),
		SessionID: sessionID,
		Duration:  elapsed,
	}, nil
}
