package server

import (
	"net/http"

	"github.com/playperu/storyline/internal/migration"
	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/storyline"
)

type SessionResponse struct {
	Session   session.Session  `json:"session"`
	Guest     bool             `json:"guest"`
	Migration migration.Status `json:"migration"`
}

type MigrationPendingResponse struct {
	Pending bool `json:"pending"`
}

func sessionResponse(d Deps, r *http.Request, device string) (SessionResponse, error) {
	sess := d.Sessions.Current(device)
	st, err := d.Migration.Status(r.Context(), device)
	if err != nil {
		return SessionResponse{}, err
	}
	return SessionResponse{Session: sess, Guest: sess.Guest(), Migration: st}, nil
}

func handleSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := sessionResponse(d, r, deviceFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleSignIn notifies that the device is now signed in as the user named
// by the bearer token. A guest signing in migrates pending save slots before
// the response is written.
func handleSignIn(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFrom(r)
		user, err := verifyRequest(d, r)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		if _, err := d.Sessions.SignIn(r.Context(), device, user, d.now()); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		resp, err := sessionResponse(d, r, device)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSignOut(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		device := deviceFrom(r)
		if _, err := d.Sessions.SignOut(r.Context(), device); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		resp, err := sessionResponse(d, r, device)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleMigrationStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := d.Migration.Status(r.Context(), deviceFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleMigrationPending(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := d.Migration.MarkPending(r.Context(), deviceFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MigrationPendingResponse{Pending: pending})
	}
}

// handleMigrationRetry re-runs the migration of a signed-in device, typically
// after a failure.
func handleMigrationRetry(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)
		if sess.Guest() {
			writeErr(w, d.Logger, storyline.New(storyline.CodeNotAuthenticated, "sign in to migrate saves"))
			return
		}
		res, err := d.Migration.Migrate(r.Context(), deviceFrom(r), sess.User)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
