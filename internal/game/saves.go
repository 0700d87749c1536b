package game

import (
	"context"

	"github.com/playperu/storyline/internal/events"
	"github.com/playperu/storyline/internal/narrative"
	"github.com/playperu/storyline/internal/storyline"
)

func (s *Service) Saves(ctx context.Context, p Player) (storyline.SaveSlots, error) {
	return p.Records.Saves(ctx)
}

// Save snapshots the chapter in progress into slot, replacing what was there.
func (s *Service) Save(ctx context.Context, p Player, slot int) (storyline.SaveSlot, error) {
	if !storyline.ValidSlot(slot) {
		return storyline.SaveSlot{}, storyline.Newf(storyline.CodeNotFound, "save slot %d not found", slot)
	}
	state, ok, err := p.Records.PlayState(ctx)
	if err != nil {
		return storyline.SaveSlot{}, err
	}
	if !ok {
		return storyline.SaveSlot{}, storyline.New(storyline.CodeNotFound, "no chapter in progress")
	}
	unlocked, err := p.Records.Achievements(ctx)
	if err != nil {
		return storyline.SaveSlot{}, err
	}
	slots, err := p.Records.Saves(ctx)
	if err != nil {
		return storyline.SaveSlot{}, err
	}

	slots.Put(slot, storyline.SaveSlot{
		ChapterID:         state.ChapterID,
		SceneIndex:        state.SceneIndex,
		RelationshipScore: state.RelationshipScore,
		Choices:           state.Choices,
		Achievements:      unlocked.IDs(),
	}, s.now())
	if err := p.Records.WriteSaves(ctx, slots); err != nil {
		return storyline.SaveSlot{}, err
	}

	s.events.Publish(ctx, events.New(events.TypeSaveWritten, p.Device, map[string]int{"slot": slot}))
	return *slots[slot], nil
}

// DeleteSave empties slot.
func (s *Service) DeleteSave(ctx context.Context, p Player, slot int) error {
	slots, err := s.filledSlots(ctx, p, slot)
	if err != nil {
		return err
	}
	slots[slot] = nil
	return p.Records.WriteSaves(ctx, slots)
}

// Load resumes play from slot. The chapter clock restarts.
func (s *Service) Load(ctx context.Context, p Player, slot int) (PlayView, error) {
	slots, err := s.filledSlots(ctx, p, slot)
	if err != nil {
		return PlayView{}, err
	}
	saved := slots[slot]
	ch, err := s.catalog.Chapter(saved.ChapterID)
	if err != nil {
		return PlayView{}, err
	}
	m, err := narrative.Resume(ch, storyline.PlayState{
		ChapterID:         saved.ChapterID,
		SceneIndex:        saved.SceneIndex,
		RelationshipScore: saved.RelationshipScore,
		Choices:           saved.Choices,
		StartedAt:         s.now().UTC(),
	})
	if err != nil {
		return PlayView{}, err
	}
	if err := p.Records.WritePlayState(ctx, m.State()); err != nil {
		return PlayView{}, err
	}
	s.metrics.Transition("load")
	s.events.Publish(ctx, events.New(events.TypeSceneChanged, p.Device, m.State()))
	return view(m), nil
}

func (s *Service) filledSlots(ctx context.Context, p Player, slot int) (storyline.SaveSlots, error) {
	if !storyline.ValidSlot(slot) {
		return storyline.SaveSlots{}, storyline.Newf(storyline.CodeNotFound, "save slot %d not found", slot)
	}
	slots, err := p.Records.Saves(ctx)
	if err != nil {
		return storyline.SaveSlots{}, err
	}
	if slots[slot] == nil {
		return storyline.SaveSlots{}, storyline.Newf(storyline.CodeNotFound, "save slot %d is empty", slot)
	}
	return slots, nil
}
