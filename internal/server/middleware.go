package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/playperu/storyline/internal/game"
	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/storyline"
	"github.com/playperu/storyline/internal/telemetry"
)

type ctxKey int

const (
	ctxKeyDevice ctxKey = iota
	ctxKeySession
	ctxKeyPlayer
)

// deviceMiddleware authenticates the {device} path parameter against its
// device key.
func deviceMiddleware(d Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			device := chi.URLParam(r, "device")
			key := deviceKey(r)
			if device == "" || key == "" {
				writeError(w, http.StatusUnauthorized, "device key required")
				return
			}
			if err := d.Devices.Authenticate(r.Context(), device, key); err != nil {
				writeErr(w, d.Logger, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyDevice, device)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionMiddleware attaches the tracked session of the device. A signed-in
// device must present a bearer token for the same user.
func sessionMiddleware(d Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := d.Sessions.Current(deviceFrom(r))
			if !sess.Guest() {
				user, err := verifyRequest(d, r)
				if err != nil {
					writeErr(w, d.Logger, err)
					return
				}
				if user != sess.User {
					writeErr(w, d.Logger, storyline.New(storyline.CodeNotAuthenticated,
						"token does not match the signed-in user"))
					return
				}
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// playerMiddleware resolves the store that is authoritative for the session
// and attaches the player records.
func playerMiddleware(d Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			device := deviceFrom(r)
			st, err := d.Stores.Resolve(r.Context(), sessionFrom(r).Target(device))
			if err != nil {
				writeErr(w, d.Logger, err)
				return
			}
			p := game.Player{
				Device:  device,
				Records: store.NewRecords(st, d.Game.Catalog().Characters),
			}
			ctx := context.WithValue(r.Context(), ctxKeyPlayer, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// migrationGate holds back requests while the device migrates. Reads pass
// unless reads is set.
func migrationGate(d Deps, reads bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !reads && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
				next.ServeHTTP(w, r)
				return
			}
			if err := d.Migration.Gate(deviceFrom(r)); err != nil {
				writeErr(w, d.Logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// observe records request metrics and a server span per route.
func observe(metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	tracer := telemetry.Tracer("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", ww.Status()),
			)
			metrics.ObserveRequest(route, r.Method, ww.Status(), time.Since(start))
		})
	}
}

func verifyRequest(d Deps, r *http.Request) (uuid.UUID, error) {
	if d.Verifier == nil {
		return uuid.Nil, storyline.New(storyline.CodeNotAuthenticated, "sign-in is not configured")
	}
	token, err := bearerToken(r)
	if err != nil {
		return uuid.Nil, err
	}
	return d.Verifier.Verify(token)
}

func deviceFrom(r *http.Request) string {
	return r.Context().Value(ctxKeyDevice).(string)
}

func sessionFrom(r *http.Request) session.Session {
	s, _ := r.Context().Value(ctxKeySession).(session.Session)
	return s
}

func playerFrom(r *http.Request) game.Player {
	return r.Context().Value(ctxKeyPlayer).(game.Player)
}
