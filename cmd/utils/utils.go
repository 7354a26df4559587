// Package utils provides utility functions for CLI commands in torpedo.
package utils

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/repotorpedo/torpedo/app"
	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/spf13/cobra"
)

// Exit codes by error kind.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitState      = 3
	ExitAuth       = 4
	ExitNetwork    = 5
	ExitProvider   = 6
)

// ErrNotInitialized is returned by commands run before the application was wired.
var ErrNotInitialized = errors.New("application is not initialized")

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	kind, ok := domain.KindOf(err)
	if !ok {
		return ExitFailure
	}
	switch kind {
	case domain.KindValidation:
		return ExitValidation
	case domain.KindState:
		return ExitState
	case domain.KindAuth:
		return ExitAuth
	case domain.KindNetwork:
		return ExitNetwork
	case domain.KindProvider:
		return ExitProvider
	default:
		return ExitFailure
	}
}

// FormatErrorForUser returns the message shown for err on the terminal.
func FormatErrorForUser(err error) string {
	if kind, ok := domain.KindOf(err); ok {
		return string(kind) + " error: " + domain.UserMessage(err)
	}
	return err.Error()
}

// HandleCommandError logs a failed command, reports it on stderr and
// returns err for cobra to pass up to Execute.
func HandleCommandError(cmd *cobra.Command, operation string, err error, fields ...any) error {
	slog.Error("Command failed", append([]any{"operation", operation, "error", err}, fields...)...)
	_ = output.FprintError(cmd, "Error: %s", FormatErrorForUser(err))
	return err
}

// Services returns the wired application services.
func Services() (*app.Services, error) {
	s := app.GetServices()
	if s == nil {
		return nil, ErrNotInitialized
	}
	return s, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
