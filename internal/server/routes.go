package server

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/storyline/internal/events"
	"github.com/playperu/storyline/internal/game"
	"github.com/playperu/storyline/internal/migration"
	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/telemetry"
)

// Deps are the services the HTTP API is built on. Verifier may be nil when
// sign-in is not configured.
type Deps struct {
	Logger    *slog.Logger
	Devices   *store.Devices
	Stores    *store.Selector
	Sessions  *session.Tracker
	Verifier  *session.Verifier
	Game      *game.Service
	Migration *migration.Reconciler
	Broker    *events.Broker
	Metrics   *telemetry.Metrics
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Mount adds the API, docs and metrics routes to r.
func Mount(r chi.Router, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Storyline API", "/openapi.json", "/docs"))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(observe(d.Metrics))
		r.Post("/devices", handleRegisterDevice(d))

		// Device routes; {device} authenticated by deviceMiddleware.
		r.Route("/{device}", func(r chi.Router) {
			r.Use(deviceMiddleware(d))

			r.Get("/events", handleEvents(d.Broker))
			r.Get("/session", handleSession(d))
			r.Post("/session", handleSignIn(d))
			r.Delete("/session", handleSignOut(d))

			r.Group(func(r chi.Router) {
				r.Use(sessionMiddleware(d))

				r.Get("/migration", handleMigrationStatus(d))
				r.Post("/migration/pending", handleMigrationPending(d))
				r.Post("/migration/retry", handleMigrationRetry(d))
			})

			// Player routes; records resolved from the current session.
			r.Group(func(r chi.Router) {
				r.Use(sessionMiddleware(d))
				r.Use(playerMiddleware(d))
				r.Use(migrationGate(d, false))

				r.Get("/chapters", handleChapters(d))
				r.Post("/chapters/{id}/start", handleStartChapter(d))

				r.Get("/play", handlePlay(d))
				r.Post("/play/advance", handleAdvance(d))
				r.Post("/play/back", handleBack(d))
				r.Post("/play/jump", handleJump(d))
				r.Post("/play/choice", handleChoice(d))
				r.Post("/play/minigame", handleMinigame(d))
				r.Post("/play/quiz", handleQuiz(d))

				r.Route("/saves", func(r chi.Router) {
					r.Use(migrationGate(d, true))
					r.Get("/", handleListSaves(d))
					r.Put("/{slot}", handleSave(d))
					r.Delete("/{slot}", handleDeleteSave(d))
					r.Post("/{slot}/load", handleLoadSave(d))
				})

				r.Get("/achievements", handleAchievements(d))
				r.Get("/gallery", handleGallery(d))
				r.Get("/library", handleLibrary(d))
				r.Get("/stats", handleStats(d))
				r.Post("/stats/playtime", handlePlayTime(d))

				r.Get("/settings", handleGetSettings(d))
				r.Put("/settings", handlePutSettings(d))

				r.Post("/reset", handleReset(d))
				r.Get("/export", handleExport(d))
			})
		})
	})
}
