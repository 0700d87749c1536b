package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/playperu/storyline/internal/handler/health"
)

type mockChecker struct{ err error }

func (m mockChecker) Check(_ context.Context) error { return m.err }

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		local      error
		remote     error
		redis      error
		wantStatus int
		wantState  string
		wantChecks map[string]string
	}{
		{
			name:       "all healthy",
			wantStatus: http.StatusOK,
			wantState:  health.StatusOK,
			wantChecks: map[string]string{"local": "ok", "remote": "ok", "redis": "ok"},
		},
		{
			name:       "local down",
			local:      errors.New("locked"),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  health.StatusDown,
			wantChecks: map[string]string{"local": "error", "remote": "ok", "redis": "ok"},
		},
		{
			name:       "remote down degrades",
			remote:     errors.New("refused"),
			wantStatus: http.StatusOK,
			wantState:  health.StatusDegraded,
			wantChecks: map[string]string{"local": "ok", "remote": "error", "redis": "ok"},
		},
		{
			name:       "everything down",
			local:      errors.New("db"),
			remote:     errors.New("pg"),
			redis:      errors.New("cache"),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  health.StatusDown,
			wantChecks: map[string]string{"local": "error", "remote": "error", "redis": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := health.NewHandler(slog.Default()).
				Require("local", mockChecker{err: tt.local}).
				Optional("remote", mockChecker{err: tt.remote}).
				Optional("redis", health.CheckerFunc(func(context.Context) error { return tt.redis }))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body health.Report
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if body.Status != tt.wantState {
				t.Errorf("overall = %q, want %q", body.Status, tt.wantState)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name].Status; got != want {
					t.Errorf("%s status = %q, want %q", name, got, want)
				}
			}
			if !body.Checks["local"].Required || body.Checks["remote"].Required {
				t.Errorf("required flags = %+v", body.Checks)
			}
		})
	}
}
