package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/store"
)

type memPersister struct {
	mu       sync.Mutex
	sessions map[string]uuid.UUID
	err      error
}

func newMemPersister() *memPersister {
	return &memPersister{sessions: map[string]uuid.UUID{}}
}

func (p *memPersister) SaveSession(_ context.Context, device string, user uuid.UUID, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sessions[device] = user
	return nil
}

func (p *memPersister) ClearSession(_ context.Context, device string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	delete(p.sessions, device)
	return nil
}

func (p *memPersister) Sessions(context.Context) (map[string]uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]uuid.UUID, len(p.sessions))
	for k, v := range p.sessions {
		out[k] = v
	}
	return out, p.err
}

type recorder struct {
	mu   sync.Mutex
	seen []session.Transition
}

func (r *recorder) record(_ context.Context, t session.Transition) {
	r.mu.Lock()
	r.seen = append(r.seen, t)
	r.mu.Unlock()
}

func (r *recorder) transitions() []session.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Transition(nil), r.seen...)
}

func TestTrackerTransitions(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	tr := session.NewTracker(p, discard)
	rec := &recorder{}
	tr.Subscribe(rec.record)

	device := uuid.NewString()
	user := uuid.New()

	assert.True(t, tr.Current(device).Guest())
	assert.Equal(t, store.Guest{Device: device}, tr.Current(device).Target(device))

	got, err := tr.SignIn(ctx, device, user, time.Now())
	require.NoError(t, err)
	assert.True(t, got.SignedIn())
	assert.Equal(t, store.Signed{Device: device, User: user}, tr.Current(device).Target(device))
	assert.Equal(t, user, p.sessions[device])

	// Same user again is not a transition.
	_, err = tr.SignIn(ctx, device, user, time.Now())
	require.NoError(t, err)

	other := uuid.New()
	got, err = tr.SignIn(ctx, device, other, time.Now())
	require.NoError(t, err)
	assert.False(t, got.SignedIn())

	_, err = tr.SignOut(ctx, device)
	require.NoError(t, err)
	assert.True(t, tr.Current(device).Guest())

	seen := rec.transitions()
	require.Len(t, seen, 3)
	assert.True(t, seen[0].SignedIn())
	assert.Equal(t, user, seen[1].From.User)
	assert.Equal(t, other, seen[1].To.User)
	assert.True(t, seen[2].To.Guest())
}

func TestTrackerSignOutGuestIsNoop(t *testing.T) {
	tr := session.NewTracker(newMemPersister(), discard)
	rec := &recorder{}
	tr.Subscribe(rec.record)

	_, err := tr.SignOut(context.Background(), "dev")
	require.NoError(t, err)
	assert.Empty(t, rec.transitions())
}

func TestTrackerPersistFailureKeepsState(t *testing.T) {
	p := newMemPersister()
	p.err = errors.New("disk full")
	tr := session.NewTracker(p, discard)
	rec := &recorder{}
	tr.Subscribe(rec.record)

	_, err := tr.SignIn(context.Background(), "dev", uuid.New(), time.Now())
	assert.Error(t, err)
	assert.True(t, tr.Current("dev").Guest())
	assert.Empty(t, rec.transitions())
}

func TestTrackerSwitchHookRunsBeforeSubscribers(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	tr := session.NewTracker(p, discard)

	var order []string
	tr.OnSwitch(func(got session.Transition) {
		p.mu.Lock()
		_, saved := p.sessions["dev"]
		p.mu.Unlock()
		assert.Equal(t, !got.To.Guest(), saved)
		order = append(order, "hook")
	})
	tr.Subscribe(func(context.Context, session.Transition) { order = append(order, "subscriber") })

	_, err := tr.SignIn(ctx, "dev", uuid.New(), time.Now())
	require.NoError(t, err)
	_, err = tr.SignOut(ctx, "dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"hook", "subscriber", "hook", "subscriber"}, order)

	p.err = errors.New("disk full")
	_, err = tr.SignIn(ctx, "dev", uuid.New(), time.Now())
	assert.Error(t, err)
	assert.Len(t, order, 4)
}

func TestTrackerRejectsNilUser(t *testing.T) {
	tr := session.NewTracker(newMemPersister(), discard)
	_, err := tr.SignIn(context.Background(), "dev", uuid.Nil, time.Now())
	assert.Error(t, err)
}

func TestTrackerLoad(t *testing.T) {
	p := newMemPersister()
	user := uuid.New()
	p.sessions["dev"] = user

	tr := session.NewTracker(p, discard)
	rec := &recorder{}
	tr.Subscribe(rec.record)
	require.NoError(t, tr.Load(context.Background()))

	assert.Equal(t, user, tr.Current("dev").User)
	assert.Empty(t, rec.transitions())
}

func TestRedisSourceHandle(t *testing.T) {
	ctx := context.Background()
	tr := session.NewTracker(newMemPersister(), discard)
	src := session.NewRedisSource(nil, "sessions", tr, discard)
	user := uuid.New()

	require.NoError(t, src.Handle(ctx, []byte(`{"event":"SIGNED_IN","device":"dev","userId":"`+user.String()+`"}`)))
	assert.Equal(t, user, tr.Current("dev").User)

	require.NoError(t, src.Handle(ctx, []byte(`{"event":"SIGNED_OUT","device":"dev"}`)))
	assert.True(t, tr.Current("dev").Guest())

	assert.Error(t, src.Handle(ctx, []byte(`{"event":"TOKEN_REFRESHED","device":"dev"}`)))
	assert.Error(t, src.Handle(ctx, []byte(`{"event":"SIGNED_OUT"}`)))
	assert.Error(t, src.Handle(ctx, []byte(`nope`)))
}
