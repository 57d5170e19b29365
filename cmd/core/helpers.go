package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/projecteru2/vmsentinel/config"
	"github.com/projecteru2/vmsentinel/lock/flock"
)

// Process exit codes. Both reactors distinguish "never reached the main
// loop" failures from a clean shutdown (0).
const (
	// ExitCodeConfig: configuration or environment invalid (bad paths,
	// instance lock busy, signal endpoint unusable).
	ExitCodeConfig = 2
	// ExitCodeWatchInit: the filesystem notification subsystem could not
	// be created. The watcher cannot function without it.
	ExitCodeWatchInit = 3
)

// ExitError carries a distinct process exit code up to main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// Exit wraps err with a process exit code.
func Exit(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode extracts the exit code from err, defaulting to 1.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// BaseHandler provides shared config access for all command handlers.
type BaseHandler struct {
	ConfProvider func() *config.Config
}

// Init returns the command context and validated config in one call.
func (h BaseHandler) Init(cmd *cobra.Command) (context.Context, *config.Config, error) {
	conf, err := h.Conf()
	if err != nil {
		return nil, nil, err
	}
	return CommandContext(cmd), conf, nil
}

// Conf validates and returns the config. All handlers call this first.
func (h BaseHandler) Conf() (*config.Config, error) {
	if h.ConfProvider == nil {
		return nil, fmt.Errorf("config provider is nil")
	}
	conf := h.ConfProvider()
	if conf == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	return conf, nil
}

// CommandContext returns command context, falling back to Background.
func CommandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// AcquireInstanceLock takes the per-role flock so two watchers (or two
// guards) can never run against the same run dir. Busy means another
// instance owns the role; that is an environment error, not a crash.
func AcquireInstanceLock(ctx context.Context, path string) (*flock.Lock, error) {
	l := flock.New(path)
	ok, err := l.TryLock(ctx)
	if err != nil {
		return nil, Exit(ExitCodeConfig, fmt.Errorf("instance lock %s: %w", path, err))
	}
	if !ok {
		return nil, Exit(ExitCodeConfig, fmt.Errorf("instance lock %s is held by another process", path))
	}
	return l, nil
}

// DebugAttachPause blocks until Enter is pressed, giving a debugger the
// chance to attach before any background activity begins. Skipped when stdin
// is not a terminal — there is nobody to press Enter.
func DebugAttachPause(ctx context.Context) {
	log.WithFunc("core.DebugAttachPause").Infof(ctx, "pid %d paused for debug attach", os.Getpid())
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return
	}
	fmt.Fprintf(os.Stderr, "attached? press Enter to continue\n")
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
}
