// Package health reports whether the stores and brokers the service depends
// on are reachable.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// Overall states of a Report.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

type check struct {
	checker  Checker
	required bool
}

type Handler struct {
	checks map[string]check
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{checks: make(map[string]check), logger: logger.With("component", "health")}
}

// Require adds a check whose failure takes the service down.
func (h *Handler) Require(name string, c Checker) *Handler {
	h.checks[name] = check{checker: c, required: true}
	return h
}

// Optional adds a check whose failure only degrades the service.
func (h *Handler) Optional(name string, c Checker) *Handler {
	h.checks[name] = check{checker: c}
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.check)
	return r
}

// Result is the outcome of one check.
type Result struct {
	Status   string `json:"status"`
	Required bool   `json:"required"`
}

// Report is the health response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]Result `json:"checks"`
}

// Run executes all checks concurrently.
func (h *Handler) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		rep = Report{Status: StatusOK, Checks: make(map[string]Result, len(h.checks))}
	)
	for name, c := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := Result{Status: StatusOK, Required: c.required}
			if err := c.checker.Check(ctx); err != nil {
				h.logger.Error("health check failed", "name", name, "error", err)
				res.Status = "error"
			}

			mu.Lock()
			defer mu.Unlock()
			rep.Checks[name] = res
			if res.Status == StatusOK {
				return
			}
			if c.required {
				rep.Status = StatusDown
			} else if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
		}()
	}
	wg.Wait()
	return rep
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	rep := h.Run(r.Context())

	status := http.StatusOK
	if rep.Status == StatusDown {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(rep)
}
