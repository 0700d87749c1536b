package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/storyline/internal/migration"
	"github.com/playperu/storyline/internal/session"
)

func TestSignInWithoutRemote(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id
	user := uuid.New()
	token := a.token(t, user)

	w := a.do(t, request{method: http.MethodPost, path: base + "/session", key: key})
	expectError(t, w, http.StatusUnauthorized, "NOT_AUTHENTICATED")

	w = a.do(t, request{method: http.MethodPost, path: base + "/session", key: key, token: "garbage"})
	expectError(t, w, http.StatusUnauthorized, "NOT_AUTHENTICATED")

	w = a.do(t, request{method: http.MethodPost, path: base + "/session", key: key, token: token})
	if w.Code != http.StatusOK {
		t.Fatalf("sign in: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp SessionResponse
	decode(t, w, &resp)
	if resp.Guest || resp.Session.User != user {
		t.Fatalf("unexpected session: %+v", resp)
	}
	if resp.Migration.State != migration.Idle {
		t.Errorf("migration state %q, want idle", resp.Migration.State)
	}

	// Signed in: a matching token is required, and no remote store is configured.
	w = a.do(t, request{method: http.MethodGet, path: base + "/chapters", key: key})
	expectError(t, w, http.StatusUnauthorized, "NOT_AUTHENTICATED")

	w = a.do(t, request{method: http.MethodGet, path: base + "/chapters", key: key, token: a.token(t, uuid.New())})
	expectError(t, w, http.StatusUnauthorized, "NOT_AUTHENTICATED")

	w = a.do(t, request{method: http.MethodGet, path: base + "/chapters", key: key, token: token})
	expectError(t, w, http.StatusServiceUnavailable, "REMOTE_UNAVAILABLE")

	w = a.do(t, request{method: http.MethodDelete, path: base + "/session", key: key})
	if w.Code != http.StatusOK {
		t.Fatalf("sign out: expected 200, got %d", w.Code)
	}
	decode(t, w, &resp)
	if !resp.Guest {
		t.Errorf("expected guest after sign out: %+v", resp)
	}

	w = a.do(t, request{method: http.MethodGet, path: base + "/chapters", key: key})
	if w.Code != http.StatusOK {
		t.Fatalf("guest chapters: expected 200, got %d", w.Code)
	}
}

func TestMigrationRoutes(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id

	w := a.do(t, request{method: http.MethodPost, path: base + "/migration/pending", key: key})
	var pending MigrationPendingResponse
	decode(t, w, &pending)
	if pending.Pending {
		t.Fatal("nothing to migrate yet, but pending reported")
	}

	a.do(t, request{method: http.MethodPost, path: base + "/chapters/1/start", key: key})
	a.do(t, request{method: http.MethodPut, path: base + "/saves/0", key: key})

	w = a.do(t, request{method: http.MethodPost, path: base + "/migration/pending", key: key})
	decode(t, w, &pending)
	if !pending.Pending {
		t.Fatal("expected pending after saving")
	}

	w = a.do(t, request{method: http.MethodGet, path: base + "/migration", key: key})
	var st migration.Status
	decode(t, w, &st)
	if !st.Pending || st.State != migration.Idle {
		t.Errorf("unexpected status: %+v", st)
	}

	w = a.do(t, request{method: http.MethodPost, path: base + "/migration/retry", key: key})
	expectError(t, w, http.StatusUnauthorized, "NOT_AUTHENTICATED")

	// Signing in without a remote store fails the migration and keeps the
	// sentinel for a later retry.
	user := uuid.New()
	token := a.token(t, user)
	w = a.do(t, request{method: http.MethodPost, path: base + "/session", key: key, token: token})
	var resp SessionResponse
	decode(t, w, &resp)
	if resp.Migration.State != migration.Failed || !resp.Migration.Pending {
		t.Errorf("expected failed pending migration: %+v", resp.Migration)
	}

	w = a.do(t, request{method: http.MethodPost, path: base + "/migration/retry", key: key, token: token})
	expectError(t, w, http.StatusServiceUnavailable, "REMOTE_UNAVAILABLE")
}

type memSessions struct{}

func (memSessions) SaveSession(context.Context, string, uuid.UUID, time.Time) error { return nil }
func (memSessions) ClearSession(context.Context, string) error { return nil }
func (memSessions) Sessions(context.Context) (map[string]uuid.UUID, error) { return nil, nil }

func TestMigrationGatesWrites(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id

	// A second tracker holds the device in Migrating while the API keeps
	// serving it as a guest.
	other := session.NewTracker(memSessions{}, a.deps.Logger)
	a.deps.Migration.Attach(other)

	ran := false
	other.OnSwitch(func(session.Transition) {
		ran = true
		w := a.do(t, request{method: http.MethodGet, path: base + "/chapters", key: key})
		if w.Code != http.StatusOK {
			t.Errorf("chapters while migrating: expected 200, got %d", w.Code)
		}
		w = a.do(t, request{method: http.MethodPost, path: base + "/chapters/1/start", key: key})
		expectError(t, w, http.StatusConflict, "MIGRATION_IN_PROGRESS")
		w = a.do(t, request{method: http.MethodGet, path: base + "/saves", key: key})
		expectError(t, w, http.StatusConflict, "MIGRATION_IN_PROGRESS")
	})

	if _, err := other.SignIn(context.Background(), id, uuid.New(), time.Now()); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if !ran {
		t.Fatal("switch hook did not run")
	}

	w := a.do(t, request{method: http.MethodPost, path: base + "/chapters/1/start", key: key})
	if w.Code != http.StatusOK {
		t.Fatalf("start after migration: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
