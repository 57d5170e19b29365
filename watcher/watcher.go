// Package watcher implements the state watcher: a debounced reactor that
// mirrors the existence of the hypervisor's lock resource into the presence
// flag. Filesystem notifications are wake-up hints only — the settled state
// of the lock resource after a quiet period is the sole source of truth.
package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/vmsentinel/config"
	storejson "github.com/projecteru2/vmsentinel/storage/json"
	"github.com/projecteru2/vmsentinel/types"
	"github.com/projecteru2/vmsentinel/utils"
)

// rawEventBuffer sizes the producer→consumer queue. Events are hints, so the
// producer drops on overflow rather than blocking the notification source.
const rawEventBuffer = 256

// Watcher owns the presence flag for one VM. Single-writer: all state
// mutation happens on the consumer loop goroutine; the only shared region is
// the debounce arm/disarm test-and-set.
type Watcher struct {
	conf      *config.Config
	fsw       *fsnotify.Watcher
	store     *storejson.Store[types.StatusIndex]
	verboseFS bool

	raw       chan fsnotify.Event
	debounceC chan struct{}

	// mu guards the debounce test-and-set and the committed-state fields
	// read by the heartbeat and by diagnostics.
	mu          sync.Mutex
	armed       bool
	timer       *time.Timer
	lastState   types.VMState
	transitions int

	startedAt time.Time
}

// New creates a Watcher. A failed fsnotify setup is fatal to the caller: the
// watcher cannot function without the notification subsystem.
func New(conf *config.Config, verboseFS bool) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		conf:      conf,
		fsw:       fsw,
		store:     storejson.New[types.StatusIndex](conf.StatusLockPath(), conf.StatusDBPath()),
		verboseFS: verboseFS,
		raw:       make(chan fsnotify.Event, rawEventBuffer),
		debounceC: make(chan struct{}, 1),
		lastState: types.VMStateUnknown,
		startedAt: time.Now(),
	}, nil
}

// Run blocks until ctx is cancelled. Startup order: HOLD until the lock
// directory exists, register the watch, reconcile once synchronously, then
// enter the reactor loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()
	logger := log.WithFunc("watcher.Run")

	if stopped := w.hold(ctx); stopped {
		logger.Infof(ctx, "stop requested during hold, exiting")
		return nil
	}

	if err := w.fsw.Add(w.conf.LockDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.conf.LockDir, err)
	}

	// The VM may already be running when the watcher starts; reconcile
	// before any event can arrive.
	w.evaluate(ctx)
	logger.Infof(ctx, "watching %s for VM %q, initial state %s",
		w.conf.LockDir, w.conf.VMName, w.lastState)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pump(gctx) })
	g.Go(func() error { return w.loop(gctx) })
	return g.Wait()
}

// Close releases the notification subsystem and any pending debounce timer.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.armed = false
	w.mu.Unlock()
	_ = w.fsw.Close()
}

// hold blocks while the lock directory does not exist, re-testing only on a
// coarse retry tick. No busy polling; a stop request returns immediately.
// Returns true when the stop fired first.
func (w *Watcher) hold(ctx context.Context) bool {
	if utils.DirExists(w.conf.LockDir) {
		return false
	}
	logger := log.WithFunc("watcher.hold")
	logger.Warnf(ctx, "lock directory %s not present, holding (retry every %s)",
		w.conf.LockDir, w.conf.HoldRetry())

	ticker := time.NewTicker(w.conf.HoldRetry())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			if utils.DirExists(w.conf.LockDir) {
				logger.Infof(ctx, "lock directory %s appeared, resuming", w.conf.LockDir)
				return false
			}
		}
	}
}

// pump is the producer side: it forwards raw notifications into the buffered
// queue and performs no business logic. Notification errors are logged and
// survived — a transient inotify hiccup must not kill the reactor.
func (w *Watcher) pump(ctx context.Context) error {
	logger := log.WithFunc("watcher.pump")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			select {
			case w.raw <- ev:
			default: // queue full: fine, it is only a wake-up hint
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warnf(ctx, "notification error: %v", err)
		}
	}
}

// loop is the consumer: the single owner of all state mutation. It blocks on
// {stop, fs activity, heartbeat, debounce elapsed} and nothing else.
func (w *Watcher) loop(ctx context.Context) error {
	logger := log.WithFunc("watcher.loop")
	heartbeat := time.NewTicker(w.conf.Heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof(ctx, "stop requested, exiting reactor loop")
			return nil
		case ev := <-w.raw:
			w.drain(ctx, ev)
			w.arm()
		case <-heartbeat.C:
			logger.Infof(ctx, "heartbeat: VM %q state=%s uptime=%s",
				w.conf.VMName, w.LastState(), units.HumanDuration(time.Since(w.startedAt)))
		case <-w.debounceC:
			w.evaluate(ctx)
		}
	}
}

// drain consumes every buffered raw event so a burst is coalesced before the
// next debounce evaluation. Per-event logging only in verbose mode.
func (w *Watcher) drain(ctx context.Context, first fsnotify.Event) {
	logger := log.WithFunc("watcher.drain")
	ev := first
	for {
		if w.verboseFS {
			logger.Infof(ctx, "fs event: %s %s", ev.Op, ev.Name)
		}
		select {
		case ev = <-w.raw:
		default:
			return
		}
	}
}

// arm schedules a debounce evaluation unless one is already pending. The
// test-and-set under the mutex is the only lock in the reactor.
func (w *Watcher) arm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.armed {
		return
	}
	w.armed = true
	w.timer = time.AfterFunc(w.conf.Debounce(), func() {
		select {
		case w.debounceC <- struct{}{}:
		default:
		}
	})
}

// disarm clears the armed flag so a future burst can re-arm.
func (w *Watcher) disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	w.timer = nil
}

// evaluate is the only place state is computed and the flag is mutated.
// It re-tests the lock resource synchronously, updates the flag on change,
// and emits exactly one transition log line. A failed flag update is never
// committed: the debounce re-arms so the next quiet window retries and the
// flag converges even without fresh filesystem activity.
func (w *Watcher) evaluate(ctx context.Context) {
	w.disarm()
	logger := log.WithFunc("watcher.evaluate")

	state := types.StateFromExists(utils.DirExists(w.conf.LockResourcePath()))
	if state == w.LastState() {
		return
	}

	flagPath := w.conf.FlagPath()
	var err error
	if state == types.VMStateRunning {
		err = WriteFlag(flagPath)
	} else {
		err = RemoveFlag(flagPath)
	}
	if err != nil {
		logger.Warnf(ctx, "update presence flag %s: %v, retrying", flagPath, err)
		w.arm()
		return
	}

	logger.Infof(ctx, "VM %q is %s", w.conf.VMName, state)
	w.mu.Lock()
	w.lastState = state
	w.transitions++
	w.mu.Unlock()
	w.recordStatus(ctx, state)
}

// recordStatus persists the committed transition for `vmsentinel status`.
// Diagnostics only, so failures are logged and swallowed.
func (w *Watcher) recordStatus(ctx context.Context, state types.VMState) {
	err := w.store.Update(ctx, func(idx *types.StatusIndex) error {
		idx.Records[w.conf.VMName] = &types.StatusRecord{
			VMName:     w.conf.VMName,
			State:      state,
			ChangedAt:  time.Now(),
			WatcherPID: os.Getpid(),
		}
		return nil
	})
	if err != nil {
		log.WithFunc("watcher.recordStatus").Warnf(ctx, "record status: %v", err)
	}
}

// LastState returns the most recently committed state.
func (w *Watcher) LastState() types.VMState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastState
}

// Transitions returns the number of committed state changes, the startup
// reconciliation included.
func (w *Watcher) Transitions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transitions
}
