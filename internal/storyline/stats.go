package storyline

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// GameStats is the aggregate statistics record of one identity.
type GameStats struct {
	TotalPlayTime      int            `json:"totalPlayTime" validate:"gte=0"`
	ChaptersCompleted  int            `json:"chaptersCompleted" validate:"gte=0"`
	ChoicesMade        int            `json:"choicesMade" validate:"gte=0"`
	MinigamesPlayed    int            `json:"minigamesPlayed" validate:"gte=0"`
	BestScores         map[string]int `json:"bestScores" validate:"dive,gte=0,lte=100"`
	RelationshipScores map[string]int `json:"relationshipScores" validate:"dive,gte=0,lte=100"`
	Endings            []string       `json:"endings"`
	FavoriteCharacter  string         `json:"favoriteCharacter,omitempty"`
	// FastestChapter is the shortest chapter play time in seconds; 0 means none.
	FastestChapter int64 `json:"fastestChapterSeconds,omitempty" validate:"gte=0"`
}

// DefaultStats returns fresh statistics with every character at the default
// relationship score.
func DefaultStats(characters []string) GameStats {
	s := GameStats{
		BestScores:         map[string]int{},
		RelationshipScores: make(map[string]int, len(characters)),
		Endings:            []string{},
	}
	for _, c := range characters {
		s.RelationshipScores[c] = DefaultRelationship
	}
	s.FavoriteCharacter = s.favorite()
	return s
}

// ChapterKey is the bestScores key under which a chapter quiz score is kept.
func ChapterKey(chapterID int) string {
	return fmt.Sprintf("chapter_%d", chapterID)
}

// Normalize fills nil collections so callers never see a nil map.
func (s *GameStats) Normalize() {
	if s.BestScores == nil {
		s.BestScores = map[string]int{}
	}
	if s.RelationshipScores == nil {
		s.RelationshipScores = map[string]int{}
	}
	if s.Endings == nil {
		s.Endings = []string{}
	}
}

// RecordChoice counts one choice taken.
func (s *GameStats) RecordChoice() {
	s.ChoicesMade++
}

// RecordScore keeps the best score seen for key. It reports whether the
// stored value changed.
func (s *GameStats) RecordScore(key string, score int) bool {
	s.Normalize()
	score = ClampScore(score)
	if prev, ok := s.BestScores[key]; ok && prev >= score {
		return false
	}
	s.BestScores[key] = score
	return true
}

// RecordMinigame counts a played minigame and keeps its best score.
func (s *GameStats) RecordMinigame(gameType string, score int) {
	s.MinigamesPlayed++
	s.RecordScore(gameType, score)
}

// CompleteChapter records a finished chapter with its quiz score and play time.
func (s *GameStats) CompleteChapter(chapterID, score int, played time.Duration) {
	if chapterID > s.ChaptersCompleted {
		s.ChaptersCompleted = chapterID
	}
	s.RecordScore(ChapterKey(chapterID), score)

	secs := int64(played / time.Second)
	if secs > 0 && (s.FastestChapter == 0 || secs < s.FastestChapter) {
		s.FastestChapter = secs
	}
}

// UpdateRelationship stores the score of a character (last write wins) and
// recomputes the favorite character.
func (s *GameStats) UpdateRelationship(character string, score int) {
	s.Normalize()
	s.RelationshipScores[character] = ClampScore(score)
	s.FavoriteCharacter = s.favorite()
}

// RecordEnding adds an ending to the reached set. It reports whether the
// ending is new.
func (s *GameStats) RecordEnding(ending string) bool {
	s.Normalize()
	if slices.Contains(s.Endings, ending) {
		return false
	}
	s.Endings = append(s.Endings, ending)
	sort.Strings(s.Endings)
	return true
}

// AddPlayTime adds whole minutes of play. Negative values are ignored.
func (s *GameStats) AddPlayTime(minutes int) {
	if minutes > 0 {
		s.TotalPlayTime += minutes
	}
}

// favorite returns the character with the highest score; ties go to the
// lexically smallest id.
func (s *GameStats) favorite() string {
	best, bestScore := "", -1
	for c, v := range s.RelationshipScores {
		if v > bestScore || (v == bestScore && c < best) {
			best, bestScore = c, v
		}
	}
	return best
}

// FormatPlayTime renders minutes as "2j 5m" style text, or "5m" under an hour.
func FormatPlayTime(minutes int) string {
	h, m := minutes/60, minutes%60
	if h > 0 {
		return fmt.Sprintf("%dj %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
