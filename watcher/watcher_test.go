package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vmsentinel/config"
	"github.com/projecteru2/vmsentinel/types"
	"github.com/projecteru2/vmsentinel/utils"
)

// newTestConfig returns a config rooted in a temp dir with short timings.
// The lock dir is created unless the test exercises the HOLD state.
func newTestConfig(t *testing.T, withLockDir bool) *config.Config {
	t.Helper()
	root := t.TempDir()
	conf := config.DefaultConfig()
	conf.StateDir = filepath.Join(root, "state")
	conf.RunDir = filepath.Join(root, "run")
	conf.LockDir = filepath.Join(root, "locks")
	conf.VMName = "testvm"
	conf.DebounceMS = 100
	conf.HeartbeatSeconds = 3600
	conf.HoldRetrySeconds = 1
	require.NoError(t, conf.EnsureDirs())
	if withLockDir {
		require.NoError(t, os.MkdirAll(conf.LockDir, 0o750))
	}
	return conf
}

func newTestWatcher(t *testing.T, conf *config.Config) *Watcher {
	t.Helper()
	w, err := New(conf, false)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func createLockResource(t *testing.T, conf *config.Config) {
	t.Helper()
	require.NoError(t, os.MkdirAll(conf.LockResourcePath(), 0o750))
}

func TestStartupReconciliationRunning(t *testing.T) {
	conf := newTestConfig(t, true)
	createLockResource(t, conf)
	w := newTestWatcher(t, conf)

	w.evaluate(context.Background())

	assert.True(t, utils.Exists(conf.FlagPath()), "flag must mirror the lock resource")
	assert.Equal(t, types.VMStateRunning, w.LastState())
	assert.Equal(t, 1, w.Transitions())
}

func TestStartupReconciliationStopped(t *testing.T) {
	conf := newTestConfig(t, true)
	// Leave a stale flag behind, as if the host crashed while running.
	require.NoError(t, WriteFlag(conf.FlagPath()))
	w := newTestWatcher(t, conf)

	w.evaluate(context.Background())

	assert.False(t, utils.Exists(conf.FlagPath()), "stale flag must be removed")
	assert.Equal(t, types.VMStateStopped, w.LastState())
}

func TestEvaluateIdempotent(t *testing.T) {
	conf := newTestConfig(t, true)
	createLockResource(t, conf)
	w := newTestWatcher(t, conf)
	ctx := context.Background()

	w.evaluate(ctx)
	require.Equal(t, 1, w.Transitions())

	info1, err := os.Stat(conf.FlagPath())
	require.NoError(t, err)

	// Unchanged lock resource: no rewrite, no transition.
	w.evaluate(ctx)
	w.evaluate(ctx)
	assert.Equal(t, 1, w.Transitions())
	info2, err := os.Stat(conf.FlagPath())
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime(), "flag must not be rewritten")

	// Resource removed: exactly one more transition.
	require.NoError(t, os.Remove(conf.LockResourcePath()))
	w.evaluate(ctx)
	assert.Equal(t, 2, w.Transitions())
	assert.False(t, utils.Exists(conf.FlagPath()))
}

func TestEvaluateRetriesAfterFlagFailure(t *testing.T) {
	conf := newTestConfig(t, true)
	createLockResource(t, conf)
	w := newTestWatcher(t, conf)
	ctx := context.Background()

	// A plain file squatting on the state dir makes every flag write fail.
	require.NoError(t, os.RemoveAll(conf.StateDir))
	require.NoError(t, os.WriteFile(conf.StateDir, nil, 0o600))

	w.evaluate(ctx)
	assert.Equal(t, types.VMStateUnknown, w.LastState(), "failed flag update must not commit")
	assert.Equal(t, 0, w.Transitions())
	select {
	case <-w.debounceC:
	case <-time.After(2 * time.Second):
		t.Fatal("failed evaluation must re-arm the debounce")
	}

	// State dir usable again: the retry converges without new fs activity.
	require.NoError(t, os.Remove(conf.StateDir))
	require.NoError(t, conf.EnsureDirs())
	w.evaluate(ctx)
	assert.Equal(t, types.VMStateRunning, w.LastState())
	assert.True(t, utils.Exists(conf.FlagPath()))
	assert.Equal(t, 1, w.Transitions())
}

func TestDebounceCoalescing(t *testing.T) {
	conf := newTestConfig(t, true)
	w := newTestWatcher(t, conf)

	// A burst of arms must schedule exactly one elapse.
	for i := 0; i < 20; i++ {
		w.arm()
	}
	select {
	case <-w.debounceC:
	case <-time.After(2 * time.Second):
		t.Fatal("debounce timer never fired")
	}
	time.Sleep(3 * conf.Debounce())
	select {
	case <-w.debounceC:
		t.Fatal("burst produced a second debounce elapse")
	default:
	}

	// After evaluation clears the armed flag, a new burst re-arms.
	w.evaluate(context.Background())
	w.arm()
	select {
	case <-w.debounceC:
	case <-time.After(2 * time.Second):
		t.Fatal("debounce did not re-arm after evaluation")
	}
}

func TestHoldHonorsStop(t *testing.T) {
	conf := newTestConfig(t, false) // lock dir absent
	w := newTestWatcher(t, conf)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	stopped := w.hold(ctx)
	assert.True(t, stopped, "stop during HOLD must win")
	assert.Less(t, time.Since(start), conf.HoldRetry()+time.Second)
	assert.False(t, utils.Exists(conf.FlagPath()), "no flag operation during HOLD")
}

func TestHoldExitsWhenDirAppears(t *testing.T) {
	conf := newTestConfig(t, false)
	w := newTestWatcher(t, conf)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = os.MkdirAll(conf.LockDir, 0o750)
	}()

	stopped := w.hold(context.Background())
	assert.False(t, stopped, "HOLD must resume once the directory exists")
}

func TestRunBurstYieldsSingleTransition(t *testing.T) {
	conf := newTestConfig(t, true)
	conf.DebounceMS = 300
	w := newTestWatcher(t, conf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Startup reconciliation commits "stopped".
	require.Eventually(t, func() bool { return w.Transitions() == 1 }, 3*time.Second, 20*time.Millisecond)

	// One logical start: the resource appears amid a burst of noise.
	createLockResource(t, conf)
	for i := 0; i < 20; i++ {
		path := filepath.Join(conf.LockDir, "noise")
		require.NoError(t, os.WriteFile(path, []byte{byte(i)}, 0o600))
	}

	require.Eventually(t, func() bool {
		return w.Transitions() == 2 && utils.Exists(conf.FlagPath())
	}, 5*time.Second, 50*time.Millisecond)

	// Silence: no further evaluation may add a transition.
	time.Sleep(3 * conf.Debounce())
	assert.Equal(t, 2, w.Transitions(), "burst must collapse into one transition")
	assert.Equal(t, types.VMStateRunning, w.LastState())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestFlagHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vm_running.flag")

	require.NoError(t, WriteFlag(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data, "flag content is an informational timestamp")

	require.NoError(t, RemoveFlag(path))
	require.NoError(t, RemoveFlag(path), "removing an absent flag is not an error")
}
