package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/storyline/internal/storyline"
)

func slotParam(r *http.Request) (int, error) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil || !storyline.ValidSlot(slot) {
		return 0, storyline.Newf(storyline.CodeNotFound, "save slot %q not found", chi.URLParam(r, "slot"))
	}
	return slot, nil
}

func handleListSaves(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := d.Game.Saves(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func handleSave(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		saved, err := d.Game.Save(r.Context(), playerFrom(r), slot)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func handleDeleteSave(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if err := d.Game.DeleteSave(r.Context(), playerFrom(r), slot); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleLoadSave(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := slotParam(r)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		v, err := d.Game.Load(r.Context(), playerFrom(r), slot)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}
