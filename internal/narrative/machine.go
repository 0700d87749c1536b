// Package narrative is the scene state machine of one chapter: it walks the
// ordered scene list, applies choice effects and minigame results to the
// relationship score, and stops at chapter completion until it is moved
// externally.
package narrative

import (
	"maps"
	"time"

	"github.com/playperu/storyline/internal/content"
	"github.com/playperu/storyline/internal/storyline"
)

// Step describes one applied transition.
type Step struct {
	From  int             `json:"from"`
	To    int             `json:"to"`
	Phase storyline.Phase `json:"phase"`

	// Choice is set when the step was a choice selection.
	Choice *content.Choice `json:"choice,omitempty"`
	// Ending is the ending selected by the choice, if any.
	Ending string `json:"ending,omitempty"`
	// MinigameScore is the result fed by CompleteMinigame.
	MinigameScore *int `json:"minigameScore,omitempty"`
}

// Completed reports whether the step finished the chapter.
func (s Step) Completed() bool {
	return s.Phase == storyline.PhaseChapterComplete
}

// Machine is the position of a player inside one chapter. It is not safe for
// concurrent use; callers load it per request from the persisted PlayState.
type Machine struct {
	chapter *content.Chapter
	state   storyline.PlayState
}

// Start places a new machine on the first scene of ch.
func Start(ch *content.Chapter, now time.Time) *Machine {
	m := &Machine{
		chapter: ch,
		state: storyline.PlayState{
			ChapterID:         ch.ID,
			RelationshipScore: storyline.DefaultRelationship,
			Choices:           map[string]string{},
			StartedAt:         now.UTC(),
		},
	}
	m.enter(0)
	return m
}

// Resume rebuilds a machine from a persisted state. The state must belong to
// ch and point at one of its scenes.
func Resume(ch *content.Chapter, state storyline.PlayState) (*Machine, error) {
	if state.ChapterID != ch.ID {
		return nil, storyline.Newf(storyline.CodeMalformedData,
			"play state is for chapter %d, not %d", state.ChapterID, ch.ID)
	}
	if ch.Scene(state.SceneIndex) == nil {
		return nil, storyline.Newf(storyline.CodeMalformedData,
			"play state scene %d outside chapter %d", state.SceneIndex, ch.ID)
	}

	state.Choices = maps.Clone(state.Choices)
	if state.Choices == nil {
		state.Choices = map[string]string{}
	}
	state.RelationshipScore = storyline.ClampScore(state.RelationshipScore)

	m := &Machine{chapter: ch, state: state}
	if state.Phase != storyline.PhaseChapterComplete {
		m.enter(state.SceneIndex)
	}
	return m, nil
}

// State returns a copy of the current position.
func (m *Machine) State() storyline.PlayState {
	s := m.state
	s.Choices = maps.Clone(m.state.Choices)
	return s
}

func (m *Machine) Chapter() *content.Chapter { return m.chapter }

// Scene returns the current scene. After completion it is the last scene.
func (m *Machine) Scene() *content.Scene {
	return m.chapter.Scene(m.state.SceneIndex)
}

func (m *Machine) Phase() storyline.Phase { return m.state.Phase }

// Advance moves past a dialogue or illustration scene.
func (m *Machine) Advance() (Step, error) {
	if err := m.playing("advance"); err != nil {
		return Step{}, err
	}
	if sc := m.Scene(); sc.Type == content.SceneChoice {
		return Step{}, storyline.Newf(storyline.CodeInvalidTransition,
			"scene %q requires a choice", sc.ID)
	}
	return m.move(m.state.SceneIndex + 1), nil
}

// Choose selects a choice on the current choice scene. The choice is recorded
// under the scene id, replacing any earlier choice for that scene, and its
// effect is applied. A choice naming a next scene jumps to that scene
// wherever it sits in the chapter; otherwise play continues sequentially.
func (m *Machine) Choose(choiceID string) (Step, error) {
	if err := m.playing("choose"); err != nil {
		return Step{}, err
	}
	sc := m.Scene()
	if sc.Type != content.SceneChoice {
		return Step{}, storyline.Newf(storyline.CodeInvalidTransition,
			"scene %q is not a choice", sc.ID)
	}
	choice, ok := sc.Choice(choiceID)
	if !ok {
		return Step{}, storyline.Newf(storyline.CodeNotFound,
			"choice %q not found in scene %q", choiceID, sc.ID)
	}

	m.state.Choices[sc.ID] = choice.ID
	m.state.RelationshipScore = choice.Effect.Apply(m.state.RelationshipScore)

	next := m.state.SceneIndex + 1
	if choice.Next != "" {
		if i := m.chapter.IndexOf(choice.Next); i >= 0 {
			next = i
		}
	}

	step := m.move(next)
	step.Choice = &choice
	step.Ending = choice.Ending
	return step, nil
}

// CompleteMinigame feeds the result of the pending minigame. The score is
// added to the relationship score, capped at 100, and play continues with the
// next scene.
func (m *Machine) CompleteMinigame(score int) (Step, error) {
	if m.state.Phase != storyline.PhaseAwaitingMinigame {
		return Step{}, storyline.Newf(storyline.CodeInvalidTransition,
			"no minigame pending in phase %s", m.state.Phase)
	}
	if score < storyline.MinScore || score > storyline.MaxScore {
		return Step{}, storyline.Newf(storyline.CodeInvalidInput,
			"minigame score %d outside 0-100", score)
	}

	m.state.RelationshipScore = min(storyline.MaxScore, m.state.RelationshipScore+score)
	step := m.move(m.state.SceneIndex + 1)
	step.MinigameScore = &score
	return step, nil
}

// Back returns to the previous scene. It has no effect on the first scene and
// is rejected once the chapter is complete.
func (m *Machine) Back() (Step, error) {
	if m.state.Phase == storyline.PhaseChapterComplete {
		return Step{}, storyline.New(storyline.CodeInvalidTransition, "chapter already complete")
	}
	if m.state.SceneIndex == 0 {
		return Step{From: 0, To: 0, Phase: m.state.Phase}, nil
	}
	return m.move(m.state.SceneIndex - 1), nil
}

// Jump sets the scene index externally. It is the only transition allowed
// after completion.
func (m *Machine) Jump(index int) error {
	if m.chapter.Scene(index) == nil {
		return storyline.Newf(storyline.CodeNotFound,
			"scene %d not found in chapter %d", index, m.chapter.ID)
	}
	m.enter(index)
	return nil
}

// Elapsed is the time since the chapter was started.
func (m *Machine) Elapsed(now time.Time) time.Duration {
	if m.state.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(m.state.StartedAt)
}

func (m *Machine) playing(op string) error {
	switch m.state.Phase {
	case storyline.PhasePlaying:
		return nil
	case storyline.PhaseAwaitingMinigame:
		return storyline.Newf(storyline.CodeInvalidTransition,
			"cannot %s: minigame %q pending", op, m.state.PendingMinigame)
	default:
		return storyline.Newf(storyline.CodeInvalidTransition,
			"cannot %s: chapter %d complete", op, m.chapter.ID)
	}
}

func (m *Machine) move(index int) Step {
	from := m.state.SceneIndex
	if index >= len(m.chapter.Scenes) {
		m.state.Phase = storyline.PhaseChapterComplete
		m.state.PendingMinigame = ""
		return Step{From: from, To: m.state.SceneIndex, Phase: m.state.Phase}
	}
	m.enter(index)
	return Step{From: from, To: index, Phase: m.state.Phase}
}

func (m *Machine) enter(index int) {
	m.state.SceneIndex = index
	sc := m.chapter.Scene(index)
	if sc.Type == content.SceneMinigame {
		m.state.Phase = storyline.PhaseAwaitingMinigame
		m.state.PendingMinigame = sc.Minigame
		return
	}
	m.state.Phase = storyline.PhasePlaying
	m.state.PendingMinigame = ""
}
