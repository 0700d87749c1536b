package game

import (
	"context"

	"github.com/playperu/storyline/internal/content"
	"github.com/playperu/storyline/internal/events"
	"github.com/playperu/storyline/internal/narrative"
	"github.com/playperu/storyline/internal/storyline"
)

// PlayView is the current position with the scene to render.
type PlayView struct {
	State      storyline.PlayState `json:"state"`
	Scene      *content.Scene      `json:"scene"`
	SceneCount int                 `json:"sceneCount"`
	// Quiz is present once the chapter is complete.
	Quiz []content.Question `json:"quiz,omitempty"`
}

// Outcome is the result of a transition.
type Outcome struct {
	PlayView
	Step     narrative.Step `json:"step"`
	Unlocked []string       `json:"unlockedAchievements,omitempty"`
}

// QuizResult is the result of finishing a chapter with its quiz.
type QuizResult struct {
	Score           int                       `json:"score"`
	FirstCompletion bool                      `json:"firstCompletion"`
	Progress        storyline.ChapterProgress `json:"progress"`
	NextUnlocked    int                       `json:"nextUnlocked,omitempty"`
	Unlocked        []string                  `json:"unlockedAchievements,omitempty"`
}

func view(m *narrative.Machine) PlayView {
	v := PlayView{
		State:      m.State(),
		Scene:      m.Scene(),
		SceneCount: len(m.Chapter().Scenes),
	}
	if m.Phase() == storyline.PhaseChapterComplete {
		v.Quiz = m.Chapter().Quiz
	}
	return v
}

// Start begins chapter id from its first scene. Unknown chapters are
// NotFound; chapters not yet unlocked are ChapterLocked.
func (s *Service) Start(ctx context.Context, p Player, id int) (PlayView, error) {
	ch, err := s.catalog.Chapter(id)
	if err != nil {
		return PlayView{}, err
	}
	chapters, err := p.Records.ChapterProgress(ctx)
	if err != nil {
		return PlayView{}, err
	}
	if !chapters.Lookup(id).IsUnlocked {
		return PlayView{}, storyline.Newf(storyline.CodeChapterLocked, "chapter %d is locked", id)
	}

	m := narrative.Start(ch, s.now())
	if err := p.Records.WritePlayState(ctx, m.State()); err != nil {
		return PlayView{}, err
	}
	s.metrics.Transition("start")
	s.events.Publish(ctx, events.New(events.TypeSceneChanged, p.Device, m.State()))
	return view(m), nil
}

// Current returns the position of the chapter in progress.
func (s *Service) Current(ctx context.Context, p Player) (PlayView, error) {
	m, err := s.machine(ctx, p)
	if err != nil {
		return PlayView{}, err
	}
	return view(m), nil
}

func (s *Service) Advance(ctx context.Context, p Player) (Outcome, error) {
	return s.transition(ctx, p, "advance", func(m *narrative.Machine) (narrative.Step, error) {
		return m.Advance()
	})
}

func (s *Service) Back(ctx context.Context, p Player) (Outcome, error) {
	return s.transition(ctx, p, "back", func(m *narrative.Machine) (narrative.Step, error) {
		return m.Back()
	})
}

// Jump moves to scene index of the current chapter, also out of a completed
// chapter.
func (s *Service) Jump(ctx context.Context, p Player, index int) (Outcome, error) {
	return s.transition(ctx, p, "jump", func(m *narrative.Machine) (narrative.Step, error) {
		from := m.State().SceneIndex
		if err := m.Jump(index); err != nil {
			return narrative.Step{}, err
		}
		return narrative.Step{From: from, To: index, Phase: m.Phase()}, nil
	})
}

// Choose takes a choice on the current scene. The choice is counted in the
// stats and a choice selecting an ending records it.
func (s *Service) Choose(ctx context.Context, p Player, choiceID string) (Outcome, error) {
	m, err := s.machine(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	step, err := m.Choose(choiceID)
	if err != nil {
		return Outcome{}, err
	}

	in, err := s.input(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	in.Stats.RecordChoice()
	triggers := []content.Trigger{content.TriggerChoiceMade}
	if step.Ending != "" && in.Stats.RecordEnding(step.Ending) {
		triggers = append(triggers, content.TriggerEndingReached)
	}
	added := s.evaluate(&in, triggers...)

	b := p.Records.Batch().Stats(in.Stats).PlayState(m.State())
	if len(added) > 0 {
		b.Achievements(in.Unlocked)
	}
	if err := b.Commit(ctx); err != nil {
		return Outcome{}, err
	}

	out := s.moved(ctx, p, m, step, "choose")
	s.events.Publish(ctx, events.New(events.TypeChoiceMade, p.Device, map[string]string{
		"scene": m.Chapter().Scenes[step.From].ID, "choice": choiceID,
	}))
	if step.Ending != "" {
		s.events.Publish(ctx, events.New(events.TypeEndingReached, p.Device, map[string]string{"ending": step.Ending}))
	}
	s.announce(ctx, p, added)
	out.Unlocked = added
	return out, nil
}

// CompleteMinigame feeds the pending minigame's score. The best score of the
// minigame is kept in the stats.
func (s *Service) CompleteMinigame(ctx context.Context, p Player, score int) (Outcome, error) {
	m, err := s.machine(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	game := m.State().PendingMinigame
	step, err := m.CompleteMinigame(score)
	if err != nil {
		return Outcome{}, err
	}

	in, err := s.input(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	in.Stats.RecordMinigame(game, score)
	added := s.evaluate(&in, content.TriggerMinigameCompleted)

	b := p.Records.Batch().Stats(in.Stats).PlayState(m.State())
	if len(added) > 0 {
		b.Achievements(in.Unlocked)
	}
	if err := b.Commit(ctx); err != nil {
		return Outcome{}, err
	}

	out := s.moved(ctx, p, m, step, "minigame")
	s.events.Publish(ctx, events.New(events.TypeMinigameCompleted, p.Device, map[string]any{
		"minigame": game, "score": score,
	}))
	s.announce(ctx, p, added)
	out.Unlocked = added
	return out, nil
}

// SubmitQuiz grades the quiz of a completed chapter and records the chapter
// as completed, unlocking the next one. The chapter in progress ends with it:
// grading again needs the chapter to be played again.
func (s *Service) SubmitQuiz(ctx context.Context, p Player, answers []int) (QuizResult, error) {
	m, err := s.machine(ctx, p)
	if err != nil {
		return QuizResult{}, err
	}
	if m.Phase() != storyline.PhaseChapterComplete {
		return QuizResult{}, storyline.Newf(storyline.CodeInvalidTransition,
			"chapter %d is not finished", m.Chapter().ID)
	}
	ch := m.Chapter()
	score, err := ch.QuizScore(answers)
	if err != nil {
		return QuizResult{}, err
	}

	in, err := s.input(ctx, p)
	if err != nil {
		return QuizResult{}, err
	}
	now := s.now()
	state := m.State()
	total := s.catalog.ChapterCount()

	first := in.Chapters.Complete(ch.ID, score, state.RelationshipScore, state.Choices, now, total)
	elapsed := m.Elapsed(now)
	in.Stats.CompleteChapter(ch.ID, score, elapsed)
	in.Stats.AddPlayTime(int(elapsed.Minutes()))
	if ch.Character != "" {
		in.Stats.UpdateRelationship(ch.Character, state.RelationshipScore)
	}
	added := s.evaluate(&in, content.TriggerQuizCompleted, content.TriggerChapterCompleted)

	b := p.Records.Batch().
		Stats(in.Stats).
		ChapterProgress(in.Chapters).
		ClearPlayState()
	if len(added) > 0 {
		b.Achievements(in.Unlocked)
	}
	if err := b.Commit(ctx); err != nil {
		return QuizResult{}, err
	}

	res := QuizResult{
		Score:           score,
		FirstCompletion: first,
		Progress:        in.Chapters.Lookup(ch.ID),
		Unlocked:        added,
	}
	if ch.ID < total {
		res.NextUnlocked = ch.ID + 1
	}
	s.metrics.Transition("quiz")
	s.events.Publish(ctx, events.New(events.TypeChapterCompleted, p.Device, res))
	s.logger.Info("chapter completed", "device", p.Device, "chapter", ch.ID, "score", score, "first", first)
	s.announce(ctx, p, added)
	return res, nil
}

func (s *Service) transition(ctx context.Context, p Player, kind string, fn func(*narrative.Machine) (narrative.Step, error)) (Outcome, error) {
	m, err := s.machine(ctx, p)
	if err != nil {
		return Outcome{}, err
	}
	step, err := fn(m)
	if err != nil {
		return Outcome{}, err
	}
	if err := p.Records.WritePlayState(ctx, m.State()); err != nil {
		return Outcome{}, err
	}
	return s.moved(ctx, p, m, step, kind), nil
}

// moved reports a transition whose position is already persisted.
func (s *Service) moved(ctx context.Context, p Player, m *narrative.Machine, step narrative.Step, kind string) Outcome {
	s.metrics.Transition(kind)
	s.events.Publish(ctx, events.New(events.TypeSceneChanged, p.Device, step))
	return Outcome{PlayView: view(m), Step: step}
}

// machine loads the machine of the chapter in progress.
func (s *Service) machine(ctx context.Context, p Player) (*narrative.Machine, error) {
	state, ok, err := p.Records.PlayState(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storyline.New(storyline.CodeNotFound, "no chapter in progress")
	}
	ch, err := s.catalog.Chapter(state.ChapterID)
	if err != nil {
		return nil, err
	}
	return narrative.Resume(ch, state)
}
