// Package guard implements the shutdown guard: block until the STOP signal
// is set, then run an escalating, strictly time-bounded sequence of
// best-effort shutdown actors and terminate promptly no matter what.
package guard

import (
	"context"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vmsentinel/config"
	"github.com/projecteru2/vmsentinel/stopsignal"
	"github.com/projecteru2/vmsentinel/types"
	"github.com/projecteru2/vmsentinel/utils"
)

// Guard owns the STOP signal for one host. There is exactly one guard per
// host; the instance flock at the CLI layer enforces that.
type Guard struct {
	conf *config.Config
	sig  *stopsignal.Signal
	once sync.Once
}

// New creates the guard and binds the STOP signal (authoritative endpoint
// plus aliases). A stale endpoint from a prior lifetime is corrected inside
// stopsignal.Create.
func New(ctx context.Context, conf *config.Config) (*Guard, error) {
	sig, err := stopsignal.Create(ctx, conf.SignalPath(), conf.SignalAliasPaths())
	if err != nil {
		return nil, err
	}
	return &Guard{conf: conf, sig: sig}, nil
}

// Wait blocks with zero CPU until the STOP signal latches or ctx is
// cancelled. OS termination signals cancel ctx at the CLI layer, so both
// paths deliver the same stop notification.
func (g *Guard) Wait(ctx context.Context) {
	select {
	case <-g.sig.Done():
	case <-ctx.Done():
	}
}

// Stop runs the STOP sequence exactly once per process lifetime; concurrent
// and repeated callers after the first are ignored. It returns the per-actor
// results for logging and tests — the caller decides nothing from them, the
// contract is "this process exits 0 promptly" regardless.
func (g *Guard) Stop(ctx context.Context) []types.ActorResult {
	var results []types.ActorResult
	g.once.Do(func() { results = g.stopSequence(ctx) })
	return results
}

func (g *Guard) stopSequence(ctx context.Context) []types.ActorResult {
	logger := log.WithFunc("guard.stopSequence")
	pass := uuid.NewString()[:8]
	start := time.Now()
	logger.Infof(ctx, "[%s] STOP sequence started for VM %q", pass, g.conf.VMName)

	var results []types.ActorResult
	if !utils.Exists(g.conf.FlagPath()) {
		logger.Infof(ctx, "[%s] presence flag absent, no VM action needed", pass)
	} else {
		results = g.runActors(ctx, pass)
	}

	elapsed := time.Since(start)
	logger.Infof(ctx, "[%s] STOP sequence finished in %s (%s)",
		pass, elapsed, units.HumanDuration(elapsed))
	return results
}

// runActors executes smooth → delegated, then the fallback iff the delegated
// actor did not succeed. No actor's failure or hang blocks the next step.
func (g *Guard) runActors(ctx context.Context, pass string) []types.ActorResult {
	logger := log.WithFunc("guard.runActors")

	smooth := runActor(ctx, "smooth", g.conf.SmoothCmd, g.conf.SmoothTimeout())
	logger.Infof(ctx, "[%s] actor %s: %s in %s", pass, smooth.Name, smooth.Outcome(), smooth.Duration)

	delegated := runActor(ctx, "delegated", g.conf.DelegatedCmd, g.conf.DelegatedTimeout())
	logger.Infof(ctx, "[%s] actor %s: %s in %s", pass, delegated.Name, delegated.Outcome(), delegated.Duration)

	results := []types.ActorResult{smooth, delegated}
	if delegated.Succeeded() {
		return results
	}

	// Late in host shutdown the delegated actor's execution context may be
	// mid-teardown; the fallback acts with the guard's own privileges.
	logger.Warnf(ctx, "[%s] delegated actor %s, engaging fallback", pass, delegated.Outcome())
	fallback := runActor(ctx, "fallback", g.conf.FallbackCmd, g.conf.FallbackTimeout())
	logger.Infof(ctx, "[%s] actor %s: %s in %s", pass, fallback.Name, fallback.Outcome(), fallback.Duration)
	return append(results, fallback)
}

// Close is the termination hardening step: release the signal endpoint and
// aliases so nothing keeps the process resident. Errors are logged and
// swallowed — hardening must never fail the exit path.
func (g *Guard) Close(ctx context.Context) {
	if err := g.sig.Close(); err != nil {
		log.WithFunc("guard.Close").Warnf(ctx, "release signal: %v", err)
	}
}
