package guard

import (
	"context"
	"os"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/vmsentinel/cmd/core"
	"github.com/projecteru2/vmsentinel/guard"
)

// Handler implements Actions.
type Handler struct {
	core.BaseHandler
}

var _ Actions = Handler{}

// Run starts the shutdown guard: bind the STOP signal, wait, run the STOP
// sequence, then force process exit. The STOP path always exits 0 — internal
// actor failures are diagnostics, not caller-visible errors.
func (h Handler) Run(cmd *cobra.Command, _ []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return core.Exit(core.ExitCodeConfig, err)
	}
	if err := conf.EnsureDirs(); err != nil {
		return core.Exit(core.ExitCodeConfig, err)
	}

	instance, err := core.AcquireInstanceLock(ctx, conf.GuardLockPath())
	if err != nil {
		return err
	}

	g, err := guard.New(ctx, conf)
	if err != nil {
		_ = instance.Unlock(ctx)
		return core.Exit(core.ExitCodeConfig, err)
	}

	logger := log.WithFunc("guard.Run")
	logger.Infof(ctx, "guard ready for VM %q, waiting for STOP on %s", conf.VMName, conf.SignalPath())
	g.Wait(ctx)

	// The command context may already be cancelled (OS signal path); the
	// STOP sequence must not be cut short by that, its own per-actor
	// timeouts are the only cancellation mechanism.
	stopCtx := context.WithoutCancel(ctx)
	g.Stop(stopCtx)

	// Termination hardening: release everything that could keep the
	// process resident, then force exit so the host's supervisor observes
	// termination before its own deadline.
	g.Close(stopCtx)
	_ = instance.Unlock(stopCtx)
	logger.Infof(stopCtx, "guard exiting 0")
	os.Exit(0)
	return nil // unreachable
}
