package json_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storejson "github.com/projecteru2/vmsentinel/storage/json"
	"github.com/projecteru2/vmsentinel/types"
)

func newStore(t *testing.T) *storejson.Store[types.StatusIndex] {
	t.Helper()
	dir := t.TempDir()
	return storejson.New[types.StatusIndex](
		filepath.Join(dir, "status.lock"),
		filepath.Join(dir, "status.json"),
	)
}

func TestWithMissingFileYieldsInitializedZero(t *testing.T) {
	store := newStore(t)
	err := store.With(context.Background(), func(idx *types.StatusIndex) error {
		require.NotNil(t, idx.Records, "Init must run on the zero value")
		assert.Empty(t, idx.Records)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(idx *types.StatusIndex) error {
		idx.Records["vm1"] = &types.StatusRecord{VMName: "vm1", State: types.VMStateRunning}
		return nil
	})
	require.NoError(t, err)

	err = store.With(ctx, func(idx *types.StatusIndex) error {
		require.Contains(t, idx.Records, "vm1")
		assert.Equal(t, types.VMStateRunning, idx.Records["vm1"].State)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateAbortsOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	wantErr := assert.AnError
	err := store.Update(ctx, func(idx *types.StatusIndex) error {
		idx.Records["vm1"] = &types.StatusRecord{VMName: "vm1"}
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	err = store.With(ctx, func(idx *types.StatusIndex) error {
		assert.Empty(t, idx.Records, "failed update must not persist")
		return nil
	})
	require.NoError(t, err)
}
