package stopsignal_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vmsentinel/stopsignal"
)

func waitSet(t *testing.T, s *stopsignal.Signal) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal was not set")
	}
}

func TestSetLatchesSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.sock")
	s, err := stopsignal.Create(context.Background(), path, nil)
	require.NoError(t, err)
	defer s.Close()

	select {
	case <-s.Done():
		t.Fatal("signal set before anyone signaled")
	default:
	}

	require.NoError(t, stopsignal.Set(path))
	waitSet(t, s)

	// Manual-reset: repeated setters are absorbed, the latch stays set.
	require.NoError(t, stopsignal.Set(path))
	waitSet(t, s)
}

func TestStaleEndpointCorrected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stop.sock")
	// A leftover from a prior lifetime: a plain file squatting on the path.
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	s, err := stopsignal.Create(context.Background(), path, nil)
	require.NoError(t, err, "stale endpoint must be corrected, not fatal")
	defer s.Close()

	select {
	case <-s.Done():
		t.Fatal("stale endpoint must not count as a fresh STOP")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, stopsignal.Set(path))
	waitSet(t, s)
}

func TestAliasSetsSameSignal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stop.sock")
	alias := filepath.Join(dir, "legacy-stop.sock")

	s, err := stopsignal.Create(context.Background(), path, []string{alias})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, stopsignal.Set(alias), "older callers signal via the alias")
	waitSet(t, s)
}

func TestCloseRemovesEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stop.sock")
	alias := filepath.Join(dir, "legacy-stop.sock")

	s, err := stopsignal.Create(context.Background(), path, []string{alias})
	require.NoError(t, err)
	require.True(t, stopsignal.Exists(path))
	require.True(t, stopsignal.Exists(alias))

	require.NoError(t, s.Close())
	assert.False(t, stopsignal.Exists(path))
	assert.False(t, stopsignal.Exists(alias))
	assert.NoError(t, s.Close(), "close is idempotent")
}

func TestSetWithoutOwner(t *testing.T) {
	err := stopsignal.Set(filepath.Join(t.TempDir(), "nobody.sock"))
	assert.Error(t, err, "setters never create the signal themselves")
}
