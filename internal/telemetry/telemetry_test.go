package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/storyline/internal/telemetry"
)

func TestMetricsExposition(t *testing.T) {
	m := telemetry.NewMetrics(func() int { return 3 })
	m.ObserveRequest("/api/{device}/play", http.MethodGet, 200, 5*time.Millisecond)
	m.Transition("choose")
	m.AchievementUnlocked("first_chapter")
	m.Migration("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, want := range []string{
		`storyline_http_requests_total{method="GET",route="/api/{device}/play",status="200"} 1`,
		`storyline_narrative_transitions_total{kind="choose"} 1`,
		`storyline_achievements_unlocked_total{id="first_chapter"} 1`,
		`storyline_migrations_total{outcome="completed"} 1`,
		`storyline_open_device_stores 3`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %q", want)
	}
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *telemetry.Metrics
	m.ObserveRequest("/", http.MethodGet, 200, time.Millisecond)
	m.Transition("advance")
	m.AchievementUnlocked("x")
	m.Migration("failed")
}

func TestMigrationCounter(t *testing.T) {
	m := telemetry.NewMetrics(nil)
	m.Migration("failed")
	m.Migration("failed")

	n, err := testutil.GatherAndCount(m.Registry(), "storyline_migrations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "storyline", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
