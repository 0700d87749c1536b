package server

import (
	"net/http"

	"github.com/playperu/storyline/internal/storyline"
)

type PlayTimeRequest struct {
	Minutes int `json:"minutes"`
}

func handleAchievements(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := d.Game.Achievements(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleGallery(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := d.Game.Gallery(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleLibrary lists library entries, optionally filtered by ?section=.
func handleLibrary(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := d.Game.Library(r.Context(), playerFrom(r), r.URL.Query().Get("section"))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleStats(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := d.Game.Stats(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handlePlayTime(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlayTimeRequest
		if err := readJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		stats, err := d.Game.AddPlayTime(r.Context(), playerFrom(r), req.Minutes)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleGetSettings(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := d.Game.Settings(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// handlePutSettings replaces the settings. Fields missing from the body keep
// their default values.
func handlePutSettings(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := storyline.DefaultSettings()
		if err := readJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		s, err := d.Game.UpdateSettings(r.Context(), playerFrom(r), req)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleReset(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Game.Reset(r.Context(), playerFrom(r)); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleExport(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := d.Game.Export(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="storyline-export.json"`)
		writeJSON(w, http.StatusOK, snap)
	}
}
