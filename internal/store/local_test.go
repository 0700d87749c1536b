package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/storyline"
)

func newLocal(t *testing.T) *store.Local {
	t.Helper()
	reg := store.NewRegistry("")
	t.Cleanup(func() { reg.Close() })

	local, err := reg.Local(context.Background(), uuid.NewString())
	require.NoError(t, err)
	return local
}

func TestLocalReadWrite(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	_, ok, err := s.Read(ctx, store.KeyStats)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, store.KeyStats, []byte(`{"choicesMade":3}`)))
	require.NoError(t, s.Write(ctx, store.KeyStats, []byte(`{"choicesMade":4}`)))

	got, ok, err := s.Read(ctx, store.KeyStats)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"choicesMade":4}`, string(got))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Key{store.KeyStats}, keys)
}

func TestLocalRejectsInvalidJSON(t *testing.T) {
	s := newLocal(t)
	err := s.Write(context.Background(), store.KeySettings, []byte(`{not json`))
	assert.ErrorIs(t, err, storyline.ErrRemoteUnavailable)
}

func TestLocalRemoveAll(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for _, k := range store.AllKeys {
		require.NoError(t, s.Write(ctx, k, []byte(`{}`)))
	}
	require.NoError(t, s.RemoveAll(ctx, store.ProgressKeys))

	for _, k := range store.ProgressKeys {
		_, ok, err := s.Read(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, "key %s should be removed", k)
	}
	_, ok, err := s.Read(ctx, store.KeySettings)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalWriteAll(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)
	require.NoError(t, s.Write(ctx, store.KeyPlayState, []byte(`{"chapterId":1}`)))

	require.NoError(t, s.WriteAll(ctx, []store.Entry{
		{Key: store.KeyStats, Value: []byte(`{"choicesMade":1}`)},
		{Key: store.KeyChapterProgress, Value: []byte(`{}`)},
		{Key: store.KeyPlayState},
	}))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Key{store.KeyChapterProgress, store.KeyStats}, keys)
}

func TestLocalWriteAllRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)
	require.NoError(t, s.Write(ctx, store.KeyStats, []byte(`{"choicesMade":1}`)))

	err := s.WriteAll(ctx, []store.Entry{
		{Key: store.KeyStats, Value: []byte(`{"choicesMade":2}`)},
		{Key: store.KeyPlayState, Value: []byte(`{broken`)},
	})
	assert.ErrorIs(t, err, storyline.ErrRemoteUnavailable)

	got, _, err := s.Read(ctx, store.KeyStats)
	require.NoError(t, err)
	assert.JSONEq(t, `{"choicesMade":1}`, string(got))
	_, ok, err := s.Read(ctx, store.KeyPlayState)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistryCachesDevices(t *testing.T) {
	ctx := context.Background()
	reg := store.NewRegistry("")
	defer reg.Close()

	device := uuid.NewString()
	a, err := reg.Local(ctx, device)
	require.NoError(t, err)
	b, err := reg.Local(ctx, device)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, reg.Open())

	_, err = reg.Local(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, storyline.ErrNotFound)
}

func TestRegistryOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	device := uuid.NewString()

	reg := store.NewRegistry(dir)
	s, err := reg.Local(ctx, device)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, store.KeySaves, []byte(`[null]`)))
	require.NoError(t, reg.Close())

	reg = store.NewRegistry(dir)
	defer reg.Close()
	s, err = reg.Local(ctx, device)
	require.NoError(t, err)
	got, ok, err := s.Read(ctx, store.KeySaves)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[null]`, string(got))
}
