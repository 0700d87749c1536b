package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/storyline/internal/content"
	"github.com/playperu/storyline/internal/events"
	"github.com/playperu/storyline/internal/game"
	"github.com/playperu/storyline/internal/migration"
	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/telemetry"
)

type testAPI struct {
	handler  http.Handler
	deps     Deps
	verifier *session.Verifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := store.IndexDB(ctx, "")
	if err != nil {
		t.Fatalf("open index db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	devices := store.NewDevices(db).WithCost(bcrypt.MinCost)

	reg := store.NewRegistry("")
	t.Cleanup(func() { reg.Close() })
	sel := store.NewSelector(reg, nil)

	cat, err := content.Default()
	if err != nil {
		t.Fatalf("load content: %v", err)
	}
	verifier, err := session.NewVerifier("test-secret", "", logger)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	broker := events.NewBroker()
	metrics := telemetry.NewMetrics(reg.Open)
	tracker := session.NewTracker(devices, logger)
	reconciler := migration.New(migration.FromSelector(sel), broker, metrics, logger)
	reconciler.Attach(tracker)

	d := Deps{
		Logger:    logger,
		Devices:   devices,
		Stores:    sel,
		Sessions:  tracker,
		Verifier:  verifier,
		Game:      game.New(cat, broker, metrics, logger),
		Migration: reconciler,
		Broker:    broker,
		Metrics:   metrics,
	}
	r := chi.NewRouter()
	Mount(r, d)
	return &testAPI{handler: r, deps: d, verifier: verifier}
}

type request struct {
	method string
	path   string
	key    string
	token  string
	body   any
}

func (a *testAPI) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != nil {
		switch b := req.body.(type) {
		case string:
			body = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("encoding body: %v", err)
			}
			body = bytes.NewReader(data)
		}
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.key != "" {
		r.Header.Set(deviceKeyHeader, req.key)
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, r)
	return w
}

// device registers a device and returns its id and key.
func (a *testAPI) device(t *testing.T) (string, string) {
	t.Helper()
	w := a.do(t, request{method: http.MethodPost, path: "/api/devices"})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp RegisterDeviceResponse
	decode(t, w, &resp)
	return resp.DeviceID, resp.DeviceKey
}

func (a *testAPI) token(t *testing.T, user uuid.UUID) string {
	t.Helper()
	tok, err := a.verifier.Issue(user, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	var resp ErrorResponse
	decode(t, w, &resp)
	if string(resp.Code) != code {
		t.Errorf("expected code %s, got %q (%s)", code, resp.Code, resp.Error)
	}
}
