// Package progress derives achievement, completion, gallery and library
// views from persisted game records. Everything here is pure: callers load
// the records and persist whatever Evaluate returns.
package progress

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/playperu/storyline/internal/content"
	"github.com/playperu/storyline/internal/storyline"
)

// Weights of the story completion figure.
const (
	chapterWeight     = 40
	achievementWeight = 40
	endingWeight      = 20
)

// Input is the record set the aggregator reads.
type Input struct {
	Stats    storyline.GameStats
	Chapters storyline.ChapterProgressMap
	Unlocked storyline.Achievements
}

type Aggregator struct {
	catalog *content.Catalog
}

func New(c *content.Catalog) *Aggregator {
	return &Aggregator{catalog: c}
}

// AchievementView is one catalogue achievement with its derived state.
type AchievementView struct {
	content.Achievement
	Progress   int        `json:"progress"`
	Unlocked   bool       `json:"isUnlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// Achievements returns every catalogue achievement in catalogue order. Numeric
// progress is recomputed from in and never read from storage.
func (a *Aggregator) Achievements(in Input) []AchievementView {
	f := a.facts(in)
	out := make([]AchievementView, 0, len(a.catalog.Achievements))
	for _, ach := range a.catalog.Achievements {
		v := AchievementView{Achievement: ach}
		if ach.Counted() {
			v.Progress = min(f.count(ach), ach.MaxProgress)
		}
		if i := slices.IndexFunc(in.Unlocked, func(u storyline.UnlockedAchievement) bool { return u.ID == ach.ID }); i >= 0 {
			v.Unlocked = true
			at := in.Unlocked[i].UnlockedAt
			v.UnlockedAt = &at
			if ach.Counted() {
				v.Progress = ach.MaxProgress
			}
		}
		out = append(out, v)
	}
	return out
}

// Evaluate checks the achievements re-evaluated by trigger and returns the
// unlocked list with any newly met ones appended, plus their ids. Achievements
// already unlocked stay unlocked whatever the stats say now.
func (a *Aggregator) Evaluate(in Input, trigger content.Trigger, now time.Time) (storyline.Achievements, []string) {
	unlocked := slices.Clone(in.Unlocked)
	f := a.facts(in)

	var added []string
	for _, ach := range a.catalog.Achievements {
		if !ach.TriggeredBy(trigger) || unlocked.Has(ach.ID) {
			continue
		}
		if !f.met(ach) {
			continue
		}
		if unlocked.Unlock(ach.ID, now) {
			added = append(added, ach.ID)
		}
	}
	return unlocked, added
}

// Completion is the share of catalogue achievements unlocked, in percent,
// rounded half up.
func (a *Aggregator) Completion(unlocked storyline.Achievements) int {
	total := len(a.catalog.Achievements)
	if total == 0 {
		return 0
	}
	n := 0
	for _, ach := range a.catalog.Achievements {
		if unlocked.Has(ach.ID) {
			n++
		}
	}
	return (n*200 + total) / (2 * total)
}

// StoryCompletion weighs completed chapters, unlocked achievements and
// reached endings into one percentage.
func (a *Aggregator) StoryCompletion(in Input) int {
	var pct float64
	if n := a.catalog.ChapterCount(); n > 0 {
		pct += float64(len(in.Chapters.CompletedChapters())) / float64(n) * chapterWeight
	}
	if n := len(a.catalog.Achievements); n > 0 {
		pct += float64(a.unlockedCount(in.Unlocked)) / float64(n) * achievementWeight
	}
	if endings := a.catalog.Endings(); len(endings) > 0 {
		reached := 0
		for _, e := range endings {
			if slices.Contains(in.Stats.Endings, e) {
				reached++
			}
		}
		pct += float64(reached) / float64(len(endings)) * endingWeight
	}
	return int(math.Round(pct))
}

// Points sums the points of unlocked achievements.
func (a *Aggregator) Points(unlocked storyline.Achievements) int {
	total := 0
	for _, ach := range a.catalog.Achievements {
		if unlocked.Has(ach.ID) {
			total += ach.Points
		}
	}
	return total
}

func (a *Aggregator) unlockedCount(unlocked storyline.Achievements) int {
	n := 0
	for _, ach := range a.catalog.Achievements {
		if unlocked.Has(ach.ID) {
			n++
		}
	}
	return n
}

// Summary is the headline progress of one identity.
type Summary struct {
	Stats             storyline.GameStats `json:"stats"`
	Completion        int                 `json:"achievementCompletion"`
	StoryCompletion   int                 `json:"storyCompletion"`
	Points            int                 `json:"points"`
	UnlockedCount     int                 `json:"unlockedCount"`
	TotalAchievements int                 `json:"totalAchievements"`
	CompletedChapters []int               `json:"completedChapters"`
	PlayTime          string              `json:"playTime"`
}

func (a *Aggregator) Summary(in Input) Summary {
	completed := in.Chapters.CompletedChapters()
	if completed == nil {
		completed = []int{}
	}
	return Summary{
		Stats:             in.Stats,
		Completion:        a.Completion(in.Unlocked),
		StoryCompletion:   a.StoryCompletion(in),
		Points:            a.Points(in.Unlocked),
		UnlockedCount:     a.unlockedCount(in.Unlocked),
		TotalAchievements: len(a.catalog.Achievements),
		CompletedChapters: completed,
		PlayTime:          storyline.FormatPlayTime(in.Stats.TotalPlayTime),
	}
}

// facts are the derived values rules are checked against.
type facts struct {
	stats     storyline.GameStats
	completed map[int]bool
	chapters  int
	gallery   int
}

func (a *Aggregator) facts(in Input) facts {
	f := facts{
		stats:     in.Stats,
		completed: map[int]bool{},
		chapters:  a.catalog.ChapterCount(),
	}
	for _, id := range in.Chapters.CompletedChapters() {
		f.completed[id] = true
	}
	for _, g := range a.catalog.Gallery {
		if f.completed[g.ChapterRequired] {
			f.gallery++
		}
	}
	return f
}

// count returns the number of qualifying facts of a counted achievement.
func (f facts) count(ach content.Achievement) int {
	switch ach.Rule {
	case content.RuleChoicesMade:
		return f.stats.ChoicesMade
	case content.RuleScoresAtLeast:
		n := 0
		for _, v := range f.stats.BestScores {
			if v >= ach.Threshold {
				n++
			}
		}
		return n
	case content.RuleQuizScoresAtLeast:
		n := 0
		for k, v := range f.stats.BestScores {
			if strings.HasPrefix(k, "chapter_") && v >= ach.Threshold {
				n++
			}
		}
		return n
	case content.RuleRelationshipsAtLeast:
		n := 0
		for _, v := range f.stats.RelationshipScores {
			if v >= ach.Threshold {
				n++
			}
		}
		return n
	case content.RuleGalleryUnlocked:
		return f.gallery
	}
	return 0
}

// met reports whether the achievement condition holds.
func (f facts) met(ach content.Achievement) bool {
	if ach.Counted() {
		return f.count(ach) >= ach.MaxProgress
	}
	switch ach.Rule {
	case content.RuleChapterCompleted:
		return f.completed[ach.Chapter]
	case content.RuleAllChaptersCompleted:
		for id := 1; id <= f.chapters; id++ {
			if !f.completed[id] {
				return false
			}
		}
		return f.chapters > 0
	case content.RuleEndingReached:
		return slices.Contains(f.stats.Endings, ach.Ending)
	case content.RuleBestScoreAtLeast:
		v, ok := f.stats.BestScores[ach.ScoreKey]
		return ok && v >= ach.Threshold
	case content.RuleChapterWithinMinutes:
		return f.stats.FastestChapter > 0 && f.stats.FastestChapter <= int64(ach.Threshold)*60
	}
	return false
}
