// Package content holds the static narrative configuration: chapters with
// their scenes and quizzes, the achievement catalogue, and the gallery and
// library catalogues.
package content

import "github.com/playperu/storyline/internal/storyline"

// SceneType is the kind of a narrative unit.
type SceneType string

const (
	SceneDialogue     SceneType = "dialogue"
	SceneChoice       SceneType = "choice"
	SceneIllustration SceneType = "illustration"
	SceneMinigame     SceneType = "minigame"
)

type Chapter struct {
	ID          int        `yaml:"id" json:"id" validate:"gte=1"`
	Title       string     `yaml:"title" json:"title" validate:"required"`
	Subtitle    string     `yaml:"subtitle" json:"subtitle,omitempty"`
	Description string     `yaml:"description" json:"description,omitempty"`
	// Character is whose relationship score the chapter's score is recorded for.
	Character   string     `yaml:"character" json:"character,omitempty"`
	Scenes      []Scene    `yaml:"scenes" json:"scenes" validate:"required,min=1,dive"`
	Quiz        []Question `yaml:"quiz" json:"quiz" validate:"dive"`
}

// IndexOf returns the position of the scene with the given id, or -1.
// Scene identity, not position, is the transition key for choices.
func (c *Chapter) IndexOf(sceneID string) int {
	for i := range c.Scenes {
		if c.Scenes[i].ID == sceneID {
			return i
		}
	}
	return -1
}

// Scene returns the scene at index, or nil when out of range.
func (c *Chapter) Scene(index int) *Scene {
	if index < 0 || index >= len(c.Scenes) {
		return nil
	}
	return &c.Scenes[index]
}

type Scene struct {
	ID       string    `yaml:"id" json:"id" validate:"required"`
	Type     SceneType `yaml:"type" json:"type" validate:"oneof=dialogue choice illustration minigame"`
	Speaker  string    `yaml:"speaker" json:"speaker,omitempty"`
	Text     string    `yaml:"text" json:"text,omitempty"`
	Image    string    `yaml:"image" json:"image,omitempty"`
	Minigame string    `yaml:"minigame" json:"minigame,omitempty" validate:"required_if=Type minigame"`
	Choices  []Choice  `yaml:"choices" json:"choices,omitempty" validate:"required_if=Type choice,dive"`
}

// Choice finds the choice with the given id in a choice scene.
func (s *Scene) Choice(id string) (Choice, bool) {
	for _, c := range s.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

type Choice struct {
	ID     string           `yaml:"id" json:"id" validate:"required"`
	Text   string           `yaml:"text" json:"text"`
	Effect storyline.Effect `yaml:"effect" json:"effect" validate:"oneof=positive negative neutral"`
	// Next names the scene to jump to; empty falls through to the next index.
	Next string `yaml:"next" json:"next,omitempty"`
	// Ending marks the choice as selecting one of the story endings.
	Ending string `yaml:"ending" json:"ending,omitempty"`
}

type Question struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Question    string   `yaml:"question" json:"question" validate:"required"`
	Options     []string `yaml:"options" json:"options" validate:"min=2"`
	Answer      int      `yaml:"answer" json:"-" validate:"gte=0"`
	Explanation string   `yaml:"explanation" json:"explanation,omitempty"`
}

// Rule names the fact an achievement is derived from.
type Rule string

const (
	RuleChapterCompleted     Rule = "chapter_completed"
	RuleAllChaptersCompleted Rule = "all_chapters_completed"
	RuleEndingReached        Rule = "ending_reached"
	RuleBestScoreAtLeast     Rule = "best_score_at_least"
	RuleChapterWithinMinutes Rule = "chapter_within_minutes"
	RuleChoicesMade          Rule = "choices_made"
	RuleScoresAtLeast        Rule = "scores_at_least"
	RuleQuizScoresAtLeast    Rule = "quiz_scores_at_least"
	RuleRelationshipsAtLeast Rule = "relationships_at_least"
	RuleGalleryUnlocked      Rule = "gallery_unlocked"
)

// Trigger is a game event after which achievements are re-evaluated.
type Trigger string

const (
	TriggerQuizCompleted     Trigger = "quiz_completed"
	TriggerChapterCompleted  Trigger = "chapter_completed"
	TriggerChoiceMade        Trigger = "choice_made"
	TriggerMinigameCompleted Trigger = "minigame_completed"
	TriggerEndingReached     Trigger = "ending_reached"
)

type Achievement struct {
	ID          string    `yaml:"id" json:"id" validate:"required"`
	Title       string    `yaml:"title" json:"title" validate:"required"`
	Description string    `yaml:"description" json:"description"`
	Category    string    `yaml:"category" json:"category"`
	Rarity      string    `yaml:"rarity" json:"rarity" validate:"oneof=common rare epic legendary"`
	Points      int       `yaml:"points" json:"points" validate:"gte=0"`
	Rule        Rule      `yaml:"rule" json:"-" validate:"required"`
	Chapter     int       `yaml:"chapter" json:"-"`
	Ending      string    `yaml:"ending" json:"-"`
	ScoreKey    string    `yaml:"scoreKey" json:"-"`
	Threshold   int       `yaml:"threshold" json:"-" validate:"gte=0"`
	MaxProgress int       `yaml:"maxProgress" json:"maxProgress,omitempty" validate:"gte=0"`
	Triggers    []Trigger `yaml:"triggers" json:"-" validate:"required,min=1,dive,oneof=quiz_completed chapter_completed choice_made minigame_completed ending_reached"`
}

// Counted reports whether the achievement tracks numeric progress.
func (a Achievement) Counted() bool {
	return a.MaxProgress > 0
}

// TriggeredBy reports whether t re-evaluates the achievement.
func (a Achievement) TriggeredBy(t Trigger) bool {
	for _, x := range a.Triggers {
		if x == t {
			return true
		}
	}
	return false
}

type GalleryItem struct {
	ID              string `yaml:"id" json:"id" validate:"required"`
	Title           string `yaml:"title" json:"title" validate:"required"`
	Description     string `yaml:"description" json:"description"`
	Category        string `yaml:"category" json:"category" validate:"oneof=character scene ending concept"`
	ChapterRequired int    `yaml:"chapterRequired" json:"chapterRequired" validate:"gte=1"`
}

type LibraryEntry struct {
	ID              string   `yaml:"id" json:"id" validate:"required"`
	Section         string   `yaml:"section" json:"section" validate:"oneof=characters locations lore"`
	Title           string   `yaml:"title" json:"title" validate:"required"`
	Subtitle        string   `yaml:"subtitle" json:"subtitle,omitempty"`
	Body            string   `yaml:"body" json:"body"`
	Tags            []string `yaml:"tags" json:"tags,omitempty"`
	ChapterRequired int      `yaml:"chapterRequired" json:"chapterRequired" validate:"gte=1"`
}
