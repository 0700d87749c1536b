package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/storyline/internal/game"
	"github.com/playperu/storyline/internal/handler/health"
	"github.com/playperu/storyline/internal/migration"
	"github.com/playperu/storyline/internal/progress"
	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/storyline"
)

// Request parameter sets shared by the device routes.
type deviceParams struct {
	Device string `path:"device"`
	Key    string `header:"X-Device-Key"`
}

type playerParams struct {
	deviceParams
	Authorization string `header:"Authorization" description:"Bearer token; required while the device is signed in."`
}

type chapterParams struct {
	playerParams
	ID int `path:"id"`
}

type slotParams struct {
	playerParams
	Slot int `path:"slot" minimum:"0" maximum:"5"`
}

type libraryParams struct {
	playerParams
	Section string `query:"section" enum:"characters,locations,lore"`
}

type choiceOp struct {
	playerParams
	ChoiceRequest
}

type minigameOp struct {
	playerParams
	MinigameRequest
}

type quizOp struct {
	playerParams
	QuizRequest
}

type jumpOp struct {
	playerParams
	JumpRequest
}

type playTimeOp struct {
	playerParams
	PlayTimeRequest
}

type settingsOp struct {
	playerParams
	storyline.Settings
}

type opDoc struct {
	method, path, summary string
	req                   any
	resp                  any
	status                int
	errs                  []int
}

var playerErrs = []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Storyline API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Progress and save service for the Roro Jonggrang visual novel.")

	ops := []opDoc{
		{method: http.MethodGet, path: "/healthz", summary: "Health check",
			resp: health.Report{}, status: http.StatusOK, errs: []int{http.StatusServiceUnavailable}},
		{method: http.MethodPost, path: "/api/devices", summary: "Register a device",
			resp: RegisterDeviceResponse{}, status: http.StatusCreated},

		{method: http.MethodGet, path: "/api/{device}/session", summary: "Current session",
			req: deviceParams{}, resp: SessionResponse{}, status: http.StatusOK, errs: []int{http.StatusUnauthorized}},
		{method: http.MethodPost, path: "/api/{device}/session", summary: "Sign in",
			req: playerParams{}, resp: SessionResponse{}, status: http.StatusOK, errs: []int{http.StatusUnauthorized}},
		{method: http.MethodDelete, path: "/api/{device}/session", summary: "Sign out",
			req: deviceParams{}, resp: SessionResponse{}, status: http.StatusOK, errs: []int{http.StatusUnauthorized}},

		{method: http.MethodGet, path: "/api/{device}/migration", summary: "Migration status",
			req: playerParams{}, resp: migration.Status{}, status: http.StatusOK, errs: []int{http.StatusUnauthorized}},
		{method: http.MethodPost, path: "/api/{device}/migration/pending", summary: "Mark guest saves for migration",
			req: playerParams{}, resp: MigrationPendingResponse{}, status: http.StatusOK, errs: []int{http.StatusUnauthorized}},
		{method: http.MethodPost, path: "/api/{device}/migration/retry", summary: "Retry migration",
			req: playerParams{}, resp: migration.Result{}, status: http.StatusOK,
			errs: []int{http.StatusUnauthorized, http.StatusConflict, http.StatusServiceUnavailable}},

		{method: http.MethodGet, path: "/api/{device}/chapters", summary: "List chapters",
			req: playerParams{}, resp: []game.ChapterSummary{}, status: http.StatusOK, errs: playerErrs},
		{method: http.MethodPost, path: "/api/{device}/chapters/{id}/start", summary: "Start chapter",
			req: chapterParams{}, resp: game.PlayView{}, status: http.StatusOK,
			errs: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound}},

		{method: http.MethodGet, path: "/api/{device}/play", summary: "Current scene",
			req: playerParams{}, resp: game.PlayView{}, status: http.StatusOK, errs: playerErrs},
		{method: http.MethodPost, path: "/api/{device}/play/advance", summary: "Advance past the current scene",
			req: playerParams{}, resp: game.Outcome{}, status: http.StatusOK, errs: []int{http.StatusNotFound, http.StatusConflict}},
		{method: http.MethodPost, path: "/api/{device}/play/back", summary: "Return to the previous scene",
			req: playerParams{}, resp: game.Outcome{}, status: http.StatusOK, errs: []int{http.StatusNotFound, http.StatusConflict}},
		{method: http.MethodPost, path: "/api/{device}/play/jump", summary: "Jump to a scene",
			req: jumpOp{}, resp: game.Outcome{}, status: http.StatusOK, errs: []int{http.StatusBadRequest, http.StatusNotFound}},
		{method: http.MethodPost, path: "/api/{device}/play/choice", summary: "Take a choice",
			req: choiceOp{}, resp: game.Outcome{}, status: http.StatusOK,
			errs: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}},
		{method: http.MethodPost, path: "/api/{device}/play/minigame", summary: "Report a minigame score",
			req: minigameOp{}, resp: game.Outcome{}, status: http.StatusOK,
			errs: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}},
		{method: http.MethodPost, path: "/api/{device}/play/quiz", summary: "Submit the chapter quiz",
			req: quizOp{}, resp: game.QuizResult{}, status: http.StatusOK,
			errs: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}},

		{method: http.MethodGet, path: "/api/{device}/saves", summary: "List save slots",
			req: playerParams{}, resp: storyline.SaveSlots{}, status: http.StatusOK, errs: []int{http.StatusConflict}},
		{method: http.MethodPut, path: "/api/{device}/saves/{slot}", summary: "Save into a slot",
			req: slotParams{}, resp: storyline.SaveSlot{}, status: http.StatusOK,
			errs: []int{http.StatusNotFound, http.StatusConflict}},
		{method: http.MethodDelete, path: "/api/{device}/saves/{slot}", summary: "Delete a save slot",
			req: slotParams{}, status: http.StatusNoContent, errs: []int{http.StatusNotFound, http.StatusConflict}},
		{method: http.MethodPost, path: "/api/{device}/saves/{slot}/load", summary: "Load a save slot",
			req: slotParams{}, resp: game.PlayView{}, status: http.StatusOK,
			errs: []int{http.StatusNotFound, http.StatusConflict}},

		{method: http.MethodGet, path: "/api/{device}/achievements", summary: "Achievements with progress",
			req: playerParams{}, resp: []progress.AchievementView{}, status: http.StatusOK, errs: playerErrs},
		{method: http.MethodGet, path: "/api/{device}/gallery", summary: "Gallery",
			req: playerParams{}, resp: []progress.GalleryView{}, status: http.StatusOK, errs: playerErrs},
		{method: http.MethodGet, path: "/api/{device}/library", summary: "Library entries",
			req: libraryParams{}, resp: []progress.LibraryView{}, status: http.StatusOK, errs: playerErrs},
		{method: http.MethodGet, path: "/api/{device}/stats", summary: "Progress summary",
			req: playerParams{}, resp: progress.Summary{}, status: http.StatusOK, errs: playerErrs},
		{method: http.MethodPost, path: "/api/{device}/stats/playtime", summary: "Add play time",
			req: playTimeOp{}, resp: storyline.GameStats{}, status: http.StatusOK, errs: []int{http.StatusBadRequest}},

		{method: http.MethodGet, path: "/api/{device}/settings", summary: "Settings",
			req: playerParams{}, resp: storyline.Settings{}, status: http.StatusOK, errs: playerErrs},
		{method: http.MethodPut, path: "/api/{device}/settings", summary: "Replace settings",
			req: settingsOp{}, resp: storyline.Settings{}, status: http.StatusOK, errs: []int{http.StatusBadRequest}},
		{method: http.MethodPost, path: "/api/{device}/reset", summary: "Reset progress; settings are kept",
			req: playerParams{}, status: http.StatusNoContent, errs: playerErrs},
		{method: http.MethodGet, path: "/api/{device}/export", summary: "Export every record",
			req: playerParams{}, resp: store.Snapshot{}, status: http.StatusOK, errs: playerErrs},
	}

	for _, o := range ops {
		oc, err := r.NewOperationContext(o.method, o.path)
		if err != nil {
			continue
		}
		oc.SetSummary(o.summary)
		if o.req != nil {
			oc.AddReqStructure(o.req)
		}
		oc.AddRespStructure(o.resp, openapi.WithHTTPStatus(o.status))
		for _, code := range o.errs {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(code))
		}
		_ = r.AddOperation(oc)
	}

	// Event streams.
	sse, _ := r.NewOperationContext(http.MethodGet, "/api/{device}/events")
	sse.SetSummary("SSE event stream")
	sse.SetDescription("Server-Sent Events for progress changes of the device. The key may be passed as ?key=.")
	sse.AddReqStructure(deviceParams{})
	sse.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(sse)

	ws, _ := r.NewOperationContext(http.MethodGet, "/ws/{device}/events")
	ws.SetSummary("WebSocket event stream")
	ws.SetDescription("Upgrades to a WebSocket carrying the same events as the SSE stream. Pass the key as ?key=.")
	ws.AddReqStructure(struct {
		Device string `path:"device"`
		Key    string `query:"key"`
	}{})
	ws.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(ws)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
