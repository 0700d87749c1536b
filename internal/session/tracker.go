package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/storyline/internal/store"
)

// Session is the sign-in state of a device. The zero value is a guest.
type Session struct {
	User       uuid.UUID `json:"userId,omitempty"`
	SignedInAt time.Time `json:"signedInAt,omitempty"`
}

func (s Session) Guest() bool { return s.User == uuid.Nil }

// Target selects the authoritative store for a device in this session.
func (s Session) Target(device string) store.Target {
	if s.Guest() {
		return store.Guest{Device: device}
	}
	return store.Signed{Device: device, User: s.User}
}

// Transition is a change of a device's session.
type Transition struct {
	Device string  `json:"device"`
	From   Session `json:"from"`
	To     Session `json:"to"`
}

// SignedIn reports a guest to authenticated transition.
func (t Transition) SignedIn() bool {
	return t.From.Guest() && !t.To.Guest()
}

// Persister stores the last known session of each device.
type Persister interface {
	SaveSession(ctx context.Context, device string, user uuid.UUID, at time.Time) error
	ClearSession(ctx context.Context, device string) error
	Sessions(ctx context.Context) (map[string]uuid.UUID, error)
}

// Subscriber is called synchronously, in registration order, after every
// transition has been persisted.
type Subscriber func(ctx context.Context, t Transition)

// Hook is called with the tracker locked, after a transition has been
// persisted and before Current reports it. It must not call the tracker.
type Hook func(t Transition)

// Tracker holds the current session of every device.
type Tracker struct {
	persist Persister
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]Session

	subMu sync.RWMutex
	subs  []Subscriber
	hooks []Hook
}

func NewTracker(p Persister, logger *slog.Logger) *Tracker {
	return &Tracker{
		persist:  p,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]Session),
	}
}

// Load restores persisted sessions. It does not emit transitions.
func (t *Tracker) Load(ctx context.Context) error {
	saved, err := t.persist.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("loading sessions: %w", err)
	}
	t.mu.Lock()
	for device, user := range saved {
		t.sessions[device] = Session{User: user}
	}
	t.mu.Unlock()
	t.logger.Info("sessions restored", "count", len(saved))
	return nil
}

// Subscribe registers fn for future transitions.
func (t *Tracker) Subscribe(fn Subscriber) {
	t.subMu.Lock()
	t.subs = append(t.subs, fn)
	t.subMu.Unlock()
}

// OnSwitch registers fn to run before future transitions become visible.
func (t *Tracker) OnSwitch(fn Hook) {
	t.subMu.Lock()
	t.hooks = append(t.hooks, fn)
	t.subMu.Unlock()
}

// Current returns the session of device; guest when none is tracked.
func (t *Tracker) Current(device string) Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[device]
}

// SignIn records that device is signed in as user. Signing in again as the
// same user is not a transition and notifies nobody.
func (t *Tracker) SignIn(ctx context.Context, device string, user uuid.UUID, at time.Time) (Transition, error) {
	if user == uuid.Nil {
		return Transition{}, fmt.Errorf("signing in device %s: empty user id", device)
	}

	t.mu.Lock()
	from := t.sessions[device]
	if from.User == user {
		t.mu.Unlock()
		return Transition{Device: device, From: from, To: from}, nil
	}
	to := Session{User: user, SignedInAt: at.UTC()}
	if err := t.persist.SaveSession(ctx, device, user, at); err != nil {
		t.mu.Unlock()
		return Transition{}, err
	}
	tr := Transition{Device: device, From: from, To: to}
	t.switched(tr)
	t.sessions[device] = to
	t.mu.Unlock()

	t.logger.Info("signed in", "device", device, "user", user, "from_guest", from.Guest())
	t.notify(ctx, tr)
	return tr, nil
}

// SignOut returns device to guest. Local data is kept.
func (t *Tracker) SignOut(ctx context.Context, device string) (Transition, error) {
	t.mu.Lock()
	from, ok := t.sessions[device]
	if !ok {
		t.mu.Unlock()
		return Transition{Device: device}, nil
	}
	if err := t.persist.ClearSession(ctx, device); err != nil {
		t.mu.Unlock()
		return Transition{}, err
	}
	tr := Transition{Device: device, From: from}
	t.switched(tr)
	delete(t.sessions, device)
	t.mu.Unlock()

	t.logger.Info("signed out", "device", device, "user", from.User)
	t.notify(ctx, tr)
	return tr, nil
}

func (t *Tracker) switched(tr Transition) {
	t.subMu.RLock()
	hooks := append([]Hook(nil), t.hooks...)
	t.subMu.RUnlock()
	for _, fn := range hooks {
		fn(tr)
	}
}

func (t *Tracker) notify(ctx context.Context, tr Transition) {
	t.subMu.RLock()
	subs := append([]Subscriber(nil), t.subs...)
	t.subMu.RUnlock()
	for _, fn := range subs {
		fn(ctx, tr)
	}
}
