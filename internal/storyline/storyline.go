// Package storyline defines the core domain types of the story progress core
// and the pure rules that keep them consistent. It has no I/O.
package storyline

import (
	"sort"
	"time"
)

const (
	// SlotCount is the fixed number of save slots per identity.
	SlotCount = 6

	MinScore = 0
	MaxScore = 100

	// DefaultRelationship is the relationship score a chapter starts with.
	DefaultRelationship = 50
)

// ClampScore bounds v to [MinScore, MaxScore].
func ClampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// Effect is the relationship effect tag carried by a choice.
type Effect string

const (
	EffectPositive Effect = "positive"
	EffectNegative Effect = "negative"
	EffectNeutral  Effect = "neutral"
)

// EffectDelta is the relationship change applied by a non-neutral choice.
const EffectDelta = 10

// Apply returns score adjusted by the effect, clamped to [0,100].
func (e Effect) Apply(score int) int {
	switch e {
	case EffectPositive:
		return ClampScore(score + EffectDelta)
	case EffectNegative:
		return ClampScore(score - EffectDelta)
	default:
		return ClampScore(score)
	}
}

// ChapterProgress is the persisted completion record of one chapter.
type ChapterProgress struct {
	ChapterID         int               `json:"chapterId" validate:"gte=1"`
	IsUnlocked        bool              `json:"isUnlocked"`
	IsCompleted       bool              `json:"isCompleted"`
	Score             int               `json:"score" validate:"gte=0,lte=100"`
	RelationshipScore int               `json:"relationshipScore" validate:"gte=0,lte=100"`
	Choices           map[string]string `json:"choices,omitempty"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
}

// ChapterProgressMap holds chapter progress keyed by chapter id.
type ChapterProgressMap map[int]*ChapterProgress

// Get returns the progress of chapter id, creating it with defaults on first
// access. Only chapter 1 starts unlocked.
func (m ChapterProgressMap) Get(id int) *ChapterProgress {
	if p, ok := m[id]; ok {
		return p
	}
	p := &ChapterProgress{
		ChapterID:         id,
		IsUnlocked:        id == 1,
		RelationshipScore: DefaultRelationship,
	}
	m[id] = p
	return p
}

// Lookup returns the progress of chapter id without creating it. Chapter 1 is
// reported unlocked even when no record exists yet.
func (m ChapterProgressMap) Lookup(id int) ChapterProgress {
	if p, ok := m[id]; ok {
		return *p
	}
	return ChapterProgress{ChapterID: id, IsUnlocked: id == 1, RelationshipScore: DefaultRelationship}
}

// Complete marks chapter id as completed and unlocks the next chapter when one
// exists. CompletedAt is set only the first time. It reports whether the
// chapter was completed for the first time.
func (m ChapterProgressMap) Complete(id, score, relationship int, choices map[string]string, now time.Time, totalChapters int) bool {
	p := m.Get(id)
	first := !p.IsCompleted

	p.IsUnlocked = true
	p.IsCompleted = true
	p.Score = ClampScore(score)
	p.RelationshipScore = ClampScore(relationship)
	p.Choices = copyChoices(choices)
	if p.CompletedAt == nil {
		t := now.UTC()
		p.CompletedAt = &t
	}

	if id < totalChapters {
		m.Get(id + 1).IsUnlocked = true
	}
	return first
}

// CompletedChapters returns the ids of completed chapters in ascending order.
func (m ChapterProgressMap) CompletedChapters() []int {
	var ids []int
	for id, p := range m {
		if p.IsCompleted {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// UnlockChainBroken returns the first chapter id that is unlocked although its
// predecessor is not completed, or 0 when the chain is consistent.
func (m ChapterProgressMap) UnlockChainBroken() int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if id <= 1 || !m[id].IsUnlocked {
			continue
		}
		prev, ok := m[id-1]
		if !ok || !prev.IsCompleted {
			return id
		}
	}
	return 0
}

// SaveSlot is a snapshot of play progress stored in one slot.
type SaveSlot struct {
	ID                string            `json:"id,omitempty"`
	ChapterID         int               `json:"chapterId" validate:"gte=1"`
	SceneIndex        int               `json:"sceneIndex" validate:"gte=0"`
	RelationshipScore int               `json:"relationshipScore" validate:"gte=0,lte=100"`
	Choices           map[string]string `json:"choices"`
	Achievements      []string          `json:"achievements"`
	Timestamp         int64             `json:"timestamp" validate:"gte=0"`
}

// SaveSlots is the fixed slot array of one identity; a nil entry is empty.
type SaveSlots [SlotCount]*SaveSlot

// ValidSlot reports whether index addresses a slot.
func ValidSlot(index int) bool {
	return index >= 0 && index < SlotCount
}

// Put stores slot at index. The stored timestamp is strictly greater than the
// timestamp of the slot it replaces, even when the clock has not advanced.
func (s *SaveSlots) Put(index int, slot SaveSlot, now time.Time) {
	ts := now.UnixMilli()
	if prev := s[index]; prev != nil && ts <= prev.Timestamp {
		ts = prev.Timestamp + 1
	}
	if slot.ID == "" && s[index] != nil {
		slot.ID = s[index].ID
	}
	slot.Timestamp = ts
	slot.Choices = copyChoices(slot.Choices)
	if slot.Choices == nil {
		slot.Choices = map[string]string{}
	}
	if slot.Achievements == nil {
		slot.Achievements = []string{}
	}
	s[index] = &slot
}

// Empty reports whether no slot holds a save.
func (s *SaveSlots) Empty() bool {
	for _, slot := range s {
		if slot != nil {
			return false
		}
	}
	return true
}

// UnlockedAchievement records when an achievement was unlocked.
type UnlockedAchievement struct {
	ID         string    `json:"id" validate:"required"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// Achievements is the append-only list of unlocked achievements.
type Achievements []UnlockedAchievement

// Has reports whether id is unlocked.
func (a Achievements) Has(id string) bool {
	for _, u := range a {
		if u.ID == id {
			return true
		}
	}
	return false
}

// Unlock appends id unless it is already present. It reports whether id was added.
func (a *Achievements) Unlock(id string, now time.Time) bool {
	if a.Has(id) {
		return false
	}
	*a = append(*a, UnlockedAchievement{ID: id, UnlockedAt: now.UTC()})
	return true
}

// IDs returns the unlocked ids in unlock order.
func (a Achievements) IDs() []string {
	ids := make([]string, len(a))
	for i, u := range a {
		ids[i] = u.ID
	}
	return ids
}

// Phase is the state of the narrative machine within a chapter.
type Phase string

const (
	PhasePlaying          Phase = "playing"
	PhaseAwaitingMinigame Phase = "awaiting_minigame"
	PhaseChapterComplete  Phase = "chapter_complete"
)

// PlayState is the persisted position of the narrative machine.
type PlayState struct {
	ChapterID         int               `json:"chapterId" validate:"gte=1"`
	SceneIndex        int               `json:"sceneIndex" validate:"gte=0"`
	RelationshipScore int               `json:"relationshipScore" validate:"gte=0,lte=100"`
	Choices           map[string]string `json:"choices"`
	Phase             Phase             `json:"phase" validate:"oneof=playing awaiting_minigame chapter_complete"`
	PendingMinigame   string            `json:"pendingMinigame,omitempty"`
	StartedAt         time.Time         `json:"startedAt"`
}

// Settings are the player's presentation preferences.
type Settings struct {
	SoundEnabled     bool    `json:"soundEnabled"`
	MusicEnabled     bool    `json:"musicEnabled"`
	AutoAdvance      bool    `json:"autoAdvance"`
	TextSpeed        float64 `json:"textSpeed" validate:"gte=0.5,lte=2"`
	VibrationEnabled bool    `json:"vibrationEnabled"`
	AutoSave         bool    `json:"autoSave"`
	MusicVolume      float64 `json:"musicVolume" validate:"gte=0,lte=1"`
	SoundVolume      float64 `json:"soundVolume" validate:"gte=0,lte=1"`
}

// DefaultSettings returns the settings used when none were saved.
func DefaultSettings() Settings {
	return Settings{
		SoundEnabled:     true,
		MusicEnabled:     true,
		TextSpeed:        1,
		VibrationEnabled: true,
		AutoSave:         true,
		MusicVolume:      0.7,
		SoundVolume:      0.8,
	}
}

func copyChoices(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
