package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/playperu/storyline/internal/storyline"
)

var validate = validator.New()

// Records reads and writes typed documents through a Store. Every decoded
// value is validated; a value that does not fit its shape is MalformedData.
type Records struct {
	store      Store
	characters []string
}

func NewRecords(s Store, characters []string) *Records {
	return &Records{store: s, characters: characters}
}

// Store is the underlying key-value store.
func (r *Records) Store() Store { return r.store }

func (r *Records) read(ctx context.Context, key Key, dst any) (bool, error) {
	data, ok, err := r.store.Read(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, malformed(key, err)
	}
	return true, nil
}

func (r *Records) write(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return r.store.Write(ctx, key, data)
}

// ChapterProgress returns progress of every chapter touched so far.
func (r *Records) ChapterProgress(ctx context.Context) (storyline.ChapterProgressMap, error) {
	m := storyline.ChapterProgressMap{}
	if _, err := r.read(ctx, KeyChapterProgress, &m); err != nil {
		return nil, err
	}
	for id, p := range m {
		if p == nil {
			delete(m, id)
			continue
		}
		if p.ChapterID == 0 {
			p.ChapterID = id
		}
		if p.ChapterID != id {
			return nil, storyline.Newf(storyline.CodeMalformedData, "%s: entry %d holds chapter %d", KeyChapterProgress, id, p.ChapterID)
		}
		if err := validate.Struct(p); err != nil {
			return nil, malformed(KeyChapterProgress, err)
		}
	}
	if id := m.UnlockChainBroken(); id != 0 {
		return nil, storyline.Newf(storyline.CodeMalformedData, "%s: chapter %d unlocked before its predecessor was completed", KeyChapterProgress, id)
	}
	return m, nil
}

func (r *Records) WriteChapterProgress(ctx context.Context, m storyline.ChapterProgressMap) error {
	return r.write(ctx, KeyChapterProgress, m)
}

// Saves returns the save slot array; absent means all slots empty.
func (r *Records) Saves(ctx context.Context) (storyline.SaveSlots, error) {
	data, ok, err := r.store.Read(ctx, KeySaves)
	if err != nil || !ok {
		return storyline.SaveSlots{}, err
	}
	return DecodeSlots(data)
}

func (r *Records) WriteSaves(ctx context.Context, slots storyline.SaveSlots) error {
	return r.write(ctx, KeySaves, slots)
}

// DecodeSlots parses and validates a save slot array. Shorter arrays are
// padded with empty slots; longer ones are rejected.
func DecodeSlots(data []byte) (storyline.SaveSlots, error) {
	var list []*storyline.SaveSlot
	if err := json.Unmarshal(data, &list); err != nil {
		return storyline.SaveSlots{}, malformed(KeySaves, err)
	}
	if len(list) > storyline.SlotCount {
		return storyline.SaveSlots{}, storyline.Newf(storyline.CodeMalformedData,
			"%s: %d slots, at most %d allowed", KeySaves, len(list), storyline.SlotCount)
	}
	var slots storyline.SaveSlots
	for i, s := range list {
		if s == nil {
			continue
		}
		if err := validate.Struct(s); err != nil {
			return storyline.SaveSlots{}, malformed(KeySaves, err)
		}
		slots[i] = s
	}
	return slots, nil
}

// Stats returns the aggregate statistics, or fresh defaults when absent.
func (r *Records) Stats(ctx context.Context) (storyline.GameStats, error) {
	var s storyline.GameStats
	ok, err := r.read(ctx, KeyStats, &s)
	if err != nil {
		return storyline.GameStats{}, err
	}
	if !ok {
		return storyline.DefaultStats(r.characters), nil
	}
	if err := validate.Struct(s); err != nil {
		return storyline.GameStats{}, malformed(KeyStats, err)
	}
	s.Normalize()
	return s, nil
}

// HasStats reports whether statistics were ever written.
func (r *Records) HasStats(ctx context.Context) (bool, error) {
	_, ok, err := r.store.Read(ctx, KeyStats)
	return ok, err
}

func (r *Records) WriteStats(ctx context.Context, s storyline.GameStats) error {
	return r.write(ctx, KeyStats, s)
}

// Achievements returns the unlocked achievements in unlock order.
func (r *Records) Achievements(ctx context.Context) (storyline.Achievements, error) {
	var a storyline.Achievements
	if _, err := r.read(ctx, KeyAchievements, &a); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(a))
	for _, u := range a {
		if err := validate.Struct(u); err != nil {
			return nil, malformed(KeyAchievements, err)
		}
		if seen[u.ID] {
			return nil, storyline.Newf(storyline.CodeMalformedData, "%s: duplicate id %q", KeyAchievements, u.ID)
		}
		seen[u.ID] = true
	}
	return a, nil
}

func (r *Records) WriteAchievements(ctx context.Context, a storyline.Achievements) error {
	return r.write(ctx, KeyAchievements, a)
}

// Settings returns the saved settings. Settings that were never saved are
// the only read whose absence is not reported.
func (r *Records) Settings(ctx context.Context) (storyline.Settings, error) {
	s := storyline.DefaultSettings()
	ok, err := r.read(ctx, KeySettings, &s)
	if err != nil {
		return storyline.Settings{}, err
	}
	if ok {
		if err := validate.Struct(s); err != nil {
			return storyline.Settings{}, malformed(KeySettings, err)
		}
	}
	return s, nil
}

func (r *Records) WriteSettings(ctx context.Context, s storyline.Settings) error {
	if err := validate.Struct(s); err != nil {
		return storyline.Wrap(storyline.CodeInvalidInput, "invalid settings", err)
	}
	return r.write(ctx, KeySettings, s)
}

// PlayState returns the live narrative position; ok is false when no
// chapter has been started.
func (r *Records) PlayState(ctx context.Context) (storyline.PlayState, bool, error) {
	var p storyline.PlayState
	ok, err := r.read(ctx, KeyPlayState, &p)
	if err != nil || !ok {
		return storyline.PlayState{}, false, err
	}
	if err := validate.Struct(p); err != nil {
		return storyline.PlayState{}, false, malformed(KeyPlayState, err)
	}
	if p.Choices == nil {
		p.Choices = map[string]string{}
	}
	return p, true, nil
}

func (r *Records) WritePlayState(ctx context.Context, p storyline.PlayState) error {
	return r.write(ctx, KeyPlayState, p)
}

// Batch collects record writes that Commit applies in one store write.
type Batch struct {
	records *Records
	entries []Entry
	err     error
}

func (r *Records) Batch() *Batch {
	return &Batch{records: r}
}

func (b *Batch) put(key Key, v any) *Batch {
	if b.err != nil {
		return b
	}
	data, err := json.Marshal(v)
	if err != nil {
		b.err = fmt.Errorf("encoding %s: %w", key, err)
		return b
	}
	b.entries = append(b.entries, Entry{Key: key, Value: data})
	return b
}

func (b *Batch) Stats(s storyline.GameStats) *Batch { return b.put(KeyStats, s) }

func (b *Batch) ChapterProgress(m storyline.ChapterProgressMap) *Batch {
	return b.put(KeyChapterProgress, m)
}

func (b *Batch) Achievements(a storyline.Achievements) *Batch { return b.put(KeyAchievements, a) }

func (b *Batch) PlayState(p storyline.PlayState) *Batch { return b.put(KeyPlayState, p) }

// ClearPlayState ends the chapter in progress.
func (b *Batch) ClearPlayState() *Batch {
	b.entries = append(b.entries, Entry{Key: KeyPlayState})
	return b
}

// Commit writes every collected record or none of them.
func (b *Batch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.entries) == 0 {
		return nil
	}
	return b.records.store.WriteAll(ctx, b.entries)
}

// Reset removes all progress atomically. Settings are kept.
func (r *Records) Reset(ctx context.Context) error {
	return r.store.RemoveAll(ctx, ProgressKeys)
}

// Snapshot is every persisted record of one identity.
type Snapshot struct {
	ChapterProgress storyline.ChapterProgressMap `json:"chapterProgress"`
	Saves           storyline.SaveSlots          `json:"gameSaves"`
	Stats           storyline.GameStats          `json:"gameStats"`
	Achievements    storyline.Achievements       `json:"achievements"`
	Settings        storyline.Settings           `json:"gameSettings"`
	PlayState       *storyline.PlayState         `json:"gameProgress,omitempty"`
}

// Export reads every record. It fails on the first unreadable one.
func (r *Records) Export(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.ChapterProgress, err = r.ChapterProgress(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Saves, err = r.Saves(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Stats, err = r.Stats(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Achievements, err = r.Achievements(ctx); err != nil {
		return Snapshot{}, err
	}
	if snap.Settings, err = r.Settings(ctx); err != nil {
		return Snapshot{}, err
	}
	p, ok, err := r.PlayState(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if ok {
		snap.PlayState = &p
	}
	if snap.Achievements == nil {
		snap.Achievements = storyline.Achievements{}
	}
	return snap, nil
}

func malformed(key Key, err error) error {
	return storyline.Wrap(storyline.CodeMalformedData, fmt.Sprintf("decoding %s", key), err)
}
