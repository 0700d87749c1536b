// Package game binds the narrative machine, the progress aggregator and the
// persisted records into the operations a player performs.
package game

import (
	"context"
	"log/slog"
	"time"

	"github.com/playperu/storyline/internal/content"
	"github.com/playperu/storyline/internal/events"
	"github.com/playperu/storyline/internal/progress"
	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/storyline"
	"github.com/playperu/storyline/internal/telemetry"
)

// Player is one request's identity: the device and the records of the store
// that is authoritative for it right now.
type Player struct {
	Device  string
	Records *store.Records
}

type Service struct {
	catalog *content.Catalog
	agg     *progress.Aggregator
	events  events.Publisher
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func New(cat *content.Catalog, pub events.Publisher, metrics *telemetry.Metrics, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{
		catalog: cat,
		agg:     progress.New(cat),
		events:  pub,
		metrics: metrics,
		logger:  logger.With("component", "game"),
		now:     time.Now,
	}
}

// WithClock replaces the time source; tests pin it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Catalog() *content.Catalog { return s.catalog }

// ChapterSummary is one chapter of the chapter list.
type ChapterSummary struct {
	ID          int                       `json:"id"`
	Title       string                    `json:"title"`
	Subtitle    string                    `json:"subtitle,omitempty"`
	Description string                    `json:"description,omitempty"`
	SceneCount  int                       `json:"sceneCount"`
	QuizCount   int                       `json:"quizCount"`
	Progress    storyline.ChapterProgress `json:"progress"`
}

// Chapters lists every chapter with its progress.
func (s *Service) Chapters(ctx context.Context, p Player) ([]ChapterSummary, error) {
	m, err := p.Records.ChapterProgress(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ChapterSummary, 0, s.catalog.ChapterCount())
	for _, ch := range s.catalog.Chapters() {
		out = append(out, ChapterSummary{
			ID:          ch.ID,
			Title:       ch.Title,
			Subtitle:    ch.Subtitle,
			Description: ch.Description,
			SceneCount:  len(ch.Scenes),
			QuizCount:   len(ch.Quiz),
			Progress:    m.Lookup(ch.ID),
		})
	}
	return out, nil
}

// Achievements returns every achievement with progress derived from stats.
func (s *Service) Achievements(ctx context.Context, p Player) ([]progress.AchievementView, error) {
	in, err := s.input(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.agg.Achievements(in), nil
}

func (s *Service) Gallery(ctx context.Context, p Player) ([]progress.GalleryView, error) {
	m, err := p.Records.ChapterProgress(ctx)
	if err != nil {
		return nil, err
	}
	return s.agg.Gallery(m), nil
}

func (s *Service) Library(ctx context.Context, p Player, section string) ([]progress.LibraryView, error) {
	m, err := p.Records.ChapterProgress(ctx)
	if err != nil {
		return nil, err
	}
	return s.agg.Library(m, section), nil
}

// Stats returns the headline progress summary.
func (s *Service) Stats(ctx context.Context, p Player) (progress.Summary, error) {
	in, err := s.input(ctx, p)
	if err != nil {
		return progress.Summary{}, err
	}
	return s.agg.Summary(in), nil
}

// AddPlayTime adds whole minutes of play to the stats.
func (s *Service) AddPlayTime(ctx context.Context, p Player, minutes int) (storyline.GameStats, error) {
	if minutes < 0 {
		return storyline.GameStats{}, storyline.Newf(storyline.CodeInvalidInput, "negative play time %d", minutes)
	}
	stats, err := p.Records.Stats(ctx)
	if err != nil {
		return storyline.GameStats{}, err
	}
	stats.AddPlayTime(minutes)
	if err := p.Records.WriteStats(ctx, stats); err != nil {
		return storyline.GameStats{}, err
	}
	return stats, nil
}

func (s *Service) Settings(ctx context.Context, p Player) (storyline.Settings, error) {
	return p.Records.Settings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, p Player, settings storyline.Settings) (storyline.Settings, error) {
	if err := p.Records.WriteSettings(ctx, settings); err != nil {
		return storyline.Settings{}, err
	}
	return settings, nil
}

// Reset removes all progress of the player. Settings survive.
func (s *Service) Reset(ctx context.Context, p Player) error {
	if err := p.Records.Reset(ctx); err != nil {
		return err
	}
	s.logger.Info("progress reset", "device", p.Device)
	s.events.Publish(ctx, events.New(events.TypeProgressReset, p.Device, nil))
	return nil
}

func (s *Service) Export(ctx context.Context, p Player) (store.Snapshot, error) {
	return p.Records.Export(ctx)
}

func (s *Service) input(ctx context.Context, p Player) (progress.Input, error) {
	stats, err := p.Records.Stats(ctx)
	if err != nil {
		return progress.Input{}, err
	}
	chapters, err := p.Records.ChapterProgress(ctx)
	if err != nil {
		return progress.Input{}, err
	}
	unlocked, err := p.Records.Achievements(ctx)
	if err != nil {
		return progress.Input{}, err
	}
	return progress.Input{Stats: stats, Chapters: chapters, Unlocked: unlocked}, nil
}

// evaluate checks triggers in order and adds newly met achievements to
// in.Unlocked. It returns their ids; persisting them is up to the caller.
func (s *Service) evaluate(in *progress.Input, triggers ...content.Trigger) []string {
	var added []string
	for _, t := range triggers {
		var n []string
		in.Unlocked, n = s.agg.Evaluate(*in, t, s.now())
		added = append(added, n...)
	}
	return added
}

// announce reports achievements that were persisted as unlocked.
func (s *Service) announce(ctx context.Context, p Player, added []string) {
	if len(added) == 0 {
		return
	}
	for _, id := range added {
		s.metrics.AchievementUnlocked(id)
		s.events.Publish(ctx, events.New(events.TypeAchievementUnlocked, p.Device, map[string]string{"id": id}))
	}
	s.logger.Info("achievements unlocked", "device", p.Device, "ids", added)
}
