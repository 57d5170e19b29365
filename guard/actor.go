package guard

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vmsentinel/types"
	"github.com/projecteru2/vmsentinel/utils"
)

// killGracePeriod is the SIGTERM→SIGKILL window applied when an actor
// overruns its bound. Counted on top of the actor timeout, so the configured
// bounds must leave headroom under the host's external STOP deadline.
const killGracePeriod = 2 * time.Second

// runActor launches argv as a bounded subprocess: no stdin, wait up to
// timeout, terminate on overrun. It never returns an error — the outcome is
// the result value, and the caller escalates by policy, not by exception.
func runActor(ctx context.Context, name string, argv []string, timeout time.Duration) types.ActorResult {
	logger := log.WithFunc("guard.runActor")
	res := types.ActorResult{Name: name, ExitCode: -1}
	if len(argv) == 0 {
		logger.Warnf(ctx, "actor %s not configured, skipping", name)
		return res
	}

	start := time.Now()
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv comes from operator config
	cmd.Stdin = nil
	// Own process group so a timed-out actor's children die with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		res.Duration = time.Since(start)
		logger.Warnf(ctx, "actor %s failed to start: %v", name, err)
		return res
	}
	res.Started = true
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		res.ExitCode = cmd.ProcessState.ExitCode()
	case <-timer.C:
		res.TimedOut = true
		// Group-signal first so children are covered, then wait-then-kill
		// for the actor itself.
		_ = syscall.Kill(-pid, syscall.SIGTERM)
		_ = utils.TerminateProcess(pid, killGracePeriod)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-done
	}
	res.Duration = time.Since(start)
	return res
}
