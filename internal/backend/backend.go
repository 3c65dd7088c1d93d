// Package backend runs the claude CLI for one conversational turn.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Invoker runs one backend turn.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Request describes one turn.
type Request struct {
	Prompt string
	// AllowedTools is passed as --allowedTools.
	AllowedTools []string
	// SessionID selects the conversation. With Resume set the CLI continues
	// it, otherwise a new session is started under that id.
	SessionID string
	Resume    bool
	AddDirs   []string
}

// Response is the raw backend output for a successful turn.
type Response struct {
	Text      string
	SessionID string
	Duration  time.Duration
	// Refreshed is set when the turn only succeeded after an auth refresh.
	Refreshed bool
}

// ErrSessionNotFound is wrapped by a ProcessError when --resume names a
// session the CLI no longer knows.
var ErrSessionNotFound = errors.New("backend: session not found")

// TimeoutError is returned when the process exceeded its time budget and
// was killed. Timed-out turns are never retried.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend: timed out after %s", e.After)
}

// ProcessError is returned when the process could not start or exited
// with a non-zero status.
type ProcessError struct {
	ExitCode int
	// Stderr holds the tail of the process's error output.
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("backend: process exited with code %d", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil && e.Stderr == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// AuthError is returned when the backend output carries an authentication
// failure signature.
type AuthError struct {
	Signature string
	Output    string
}

func (e *AuthError) Error() string {
	return "backend: authentication failed (" + e.Signature + ")"
}

// authSignatures are matched case-sensitively against stdout and stderr.
var authSignatures = []string{
	"authentication_error",
	"OAuth token has expired",
	"Please run /login",
	"Invalid API key",
}

// detectAuthFailure returns the first signature found in output.
func detectAuthFailure(output string) (string, bool) {
	for _, sig := range authSignatures {
		if strings.Contains(output, sig) {
			return sig, true
		}
	}
	return "", false
}

// authFailure decides whether a run failed for lack of credentials. A run
// that exited non-zero is matched on all of its output. A clean exit is
// matched on stderr and on a stdout that is a JSON error envelope, never on
// the text of an ordinary answer.
func authFailure(failed bool, stdout, stderr string) (string, bool) {
	if failed || isErrorEnvelope(stdout) {
		return detectAuthFailure(stdout + "\n" + stderr)
	}
	return detectAuthFailure(stderr)
}

// isErrorEnvelope reports whether out is a single {"type":"error",...}
// object, the shape the CLI prints for API errors.
func isErrorEnvelope(out string) bool {
	out = strings.TrimSpace(out)
	if !strings.HasPrefix(out, "{") {
		return false
	}
	var env struct {
		Type string `json:"type"`
	}
	return json.Unmarshal([]byte(out), &env) == nil && env.Type == "error"
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// tail returns at most the last n bytes of s, trimmed.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n:]
}
