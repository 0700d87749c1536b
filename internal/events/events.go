// Package events fans progress events out to in-process subscribers and,
// optionally, to a RabbitMQ exchange.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeSceneChanged        = "scene.changed"
	TypeChoiceMade          = "choice.made"
	TypeMinigameCompleted   = "minigame.completed"
	TypeChapterCompleted    = "chapter.completed"
	TypeAchievementUnlocked = "achievement.unlocked"
	TypeEndingReached       = "ending.reached"
	TypeSaveWritten         = "save.written"
	TypeProgressReset       = "progress.reset"
	TypeSessionChanged      = "session.changed"
	TypeMigrationStarted    = "migration.started"
	TypeMigrationCompleted  = "migration.completed"
	TypeMigrationFailed     = "migration.failed"
)

// Event is one progress notification for a device.
type Event struct {
	Type   string    `json:"type"`
	Device string    `json:"device"`
	At     time.Time `json:"at"`
	Data   any       `json:"data,omitempty"`
}

// New stamps an event with the current time.
func New(typ, device string, data any) Event {
	return Event{Type: typ, Device: device, At: time.Now().UTC(), Data: data}
}

// Publisher delivers events. Publishing never blocks play: implementations
// drop or log what they cannot deliver.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Fanout publishes every event to each of its publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, p := range f {
		p.Publish(ctx, e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
