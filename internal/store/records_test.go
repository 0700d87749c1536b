package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/storyline"
)

var characters = []string{"roro_jonggrang", "bandung_bondowoso", "raja_baka"}

func newRecords(t *testing.T) (*store.Records, *store.Local) {
	t.Helper()
	local := newLocal(t)
	return store.NewRecords(local, characters), local
}

func TestRecordsDefaults(t *testing.T) {
	ctx := context.Background()
	r, _ := newRecords(t)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, stats.RelationshipScores["raja_baka"])

	settings, err := r.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, storyline.DefaultSettings(), settings)

	progress, err := r.ChapterProgress(ctx)
	require.NoError(t, err)
	assert.Empty(t, progress)

	slots, err := r.Saves(ctx)
	require.NoError(t, err)
	assert.True(t, slots.Empty())

	_, ok, err := r.PlayState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := r.HasStats(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRecordsRoundTripChapterProgress(t *testing.T) {
	ctx := context.Background()
	r, _ := newRecords(t)

	m := storyline.ChapterProgressMap{}
	m.Complete(1, 85, 60, map[string]string{"choice_attitude": "humble"}, time.Now(), 5)
	require.NoError(t, r.WriteChapterProgress(ctx, m))

	got, err := r.ChapterProgress(ctx)
	require.NoError(t, err)
	assert.True(t, got.Lookup(1).IsCompleted)
	assert.True(t, got.Lookup(2).IsUnlocked)
	assert.Equal(t, "humble", got.Lookup(1).Choices["choice_attitude"])
}

func TestRecordsMalformed(t *testing.T) {
	tests := []struct {
		name string
		key  store.Key
		data string
		read func(context.Context, *store.Records) error
	}{
		{
			name: "stats wrong shape",
			key:  store.KeyStats,
			data: `{"choicesMade":"many"}`,
			read: func(ctx context.Context, r *store.Records) error { _, err := r.Stats(ctx); return err },
		},
		{
			name: "relationship out of range",
			key:  store.KeyStats,
			data: `{"relationshipScores":{"raja_baka":140}}`,
			read: func(ctx context.Context, r *store.Records) error { _, err := r.Stats(ctx); return err },
		},
		{
			name: "too many slots",
			key:  store.KeySaves,
			data: `[null,null,null,null,null,null,null]`,
			read: func(ctx context.Context, r *store.Records) error { _, err := r.Saves(ctx); return err },
		},
		{
			name: "slot with invalid chapter",
			key:  store.KeySaves,
			data: `[{"chapterId":0,"sceneIndex":1,"relationshipScore":50,"timestamp":1}]`,
			read: func(ctx context.Context, r *store.Records) error { _, err := r.Saves(ctx); return err },
		},
		{
			name: "unlock chain broken",
			key:  store.KeyChapterProgress,
			data: `{"1":{"chapterId":1,"isUnlocked":true},"2":{"chapterId":2,"isUnlocked":true}}`,
			read: func(ctx context.Context, r *store.Records) error { _, err := r.ChapterProgress(ctx); return err },
		},
		{
			name: "settings out of range",
			key:  store.KeySettings,
			data: `{"textSpeed":9}`,
			read: func(ctx context.Context, r *store.Records) error { _, err := r.Settings(ctx); return err },
		},
		{
			name: "duplicate achievement",
			key:  store.KeyAchievements,
			data: `[{"id":"collector","unlockedAt":"2025-01-01T00:00:00Z"},{"id":"collector","unlockedAt":"2025-01-02T00:00:00Z"}]`,
			read: func(ctx context.Context, r *store.Records) error { _, err := r.Achievements(ctx); return err },
		},
		{
			name: "play state phase",
			key:  store.KeyPlayState,
			data: `{"chapterId":1,"sceneIndex":0,"relationshipScore":50,"phase":"dancing"}`,
			read: func(ctx context.Context, r *store.Records) error { _, _, err := r.PlayState(ctx); return err },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r, local := newRecords(t)
			require.NoError(t, local.Write(ctx, tt.key, []byte(tt.data)))

			err := tt.read(ctx, r)
			assert.ErrorIs(t, err, storyline.ErrMalformedData)
		})
	}
}

func TestRecordsPartialSettingsKeepDefaults(t *testing.T) {
	ctx := context.Background()
	r, local := newRecords(t)
	require.NoError(t, local.Write(ctx, store.KeySettings, []byte(`{"musicVolume":0.2,"textSpeed":1.5}`)))

	s, err := r.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.2, s.MusicVolume)
	assert.Equal(t, 1.5, s.TextSpeed)
	assert.Equal(t, 0.8, s.SoundVolume)
}

func TestRecordsWriteSettingsValidates(t *testing.T) {
	r, _ := newRecords(t)
	s := storyline.DefaultSettings()
	s.MusicVolume = 3

	err := r.WriteSettings(context.Background(), s)
	assert.ErrorIs(t, err, storyline.ErrInvalidInput)
}

func TestRecordsResetKeepsSettings(t *testing.T) {
	ctx := context.Background()
	r, _ := newRecords(t)

	require.NoError(t, r.WriteStats(ctx, storyline.DefaultStats(characters)))
	require.NoError(t, r.WriteSettings(ctx, storyline.DefaultSettings()))
	var slots storyline.SaveSlots
	slots.Put(0, storyline.SaveSlot{ChapterID: 1}, time.Now())
	require.NoError(t, r.WriteSaves(ctx, slots))

	require.NoError(t, r.Reset(ctx))

	has, err := r.HasStats(ctx)
	require.NoError(t, err)
	assert.False(t, has)
	got, err := r.Saves(ctx)
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestRecordsExport(t *testing.T) {
	ctx := context.Background()
	r, _ := newRecords(t)

	require.NoError(t, r.WritePlayState(ctx, storyline.PlayState{
		ChapterID: 1, RelationshipScore: 50, Phase: storyline.PhasePlaying,
	}))

	snap, err := r.Export(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.PlayState)
	assert.Equal(t, 1, snap.PlayState.ChapterID)
	assert.NotNil(t, snap.Achievements)
}

func TestDecodeSlotsPadsShortArrays(t *testing.T) {
	slots, err := store.DecodeSlots([]byte(`[null,{"chapterId":2,"sceneIndex":3,"relationshipScore":70,"choices":{},"achievements":[],"timestamp":5}]`))
	require.NoError(t, err)
	assert.Nil(t, slots[0])
	require.NotNil(t, slots[1])
	assert.Equal(t, 2, slots[1].ChapterID)
	assert.Nil(t, slots[5])
}
