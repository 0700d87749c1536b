package server

import (
	"net/http"
	"testing"

	"github.com/playperu/storyline/internal/game"
	"github.com/playperu/storyline/internal/storyline"
)

func TestDeviceAuth(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{name: "valid key", path: "/api/" + id + "/chapters", key: key, status: http.StatusOK},
		{name: "missing key", path: "/api/" + id + "/chapters", status: http.StatusUnauthorized},
		{name: "wrong key", path: "/api/" + id + "/chapters", key: "nope", status: http.StatusUnauthorized},
		{name: "unknown device", path: "/api/00000000-0000-0000-0000-000000000000/chapters", key: key, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, request{method: http.MethodGet, path: tt.path, key: tt.key})
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestChaptersAndStart(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id

	w := a.do(t, request{method: http.MethodGet, path: base + "/chapters", key: key})
	var chapters []game.ChapterSummary
	decode(t, w, &chapters)
	if len(chapters) != 5 {
		t.Fatalf("expected 5 chapters, got %d", len(chapters))
	}
	if !chapters[0].Progress.IsUnlocked || chapters[1].Progress.IsUnlocked {
		t.Errorf("expected only chapter 1 unlocked: %+v", chapters[:2])
	}

	w = a.do(t, request{method: http.MethodPost, path: base + "/chapters/2/start", key: key})
	expectError(t, w, http.StatusForbidden, "CHAPTER_LOCKED")

	w = a.do(t, request{method: http.MethodPost, path: base + "/chapters/9/start", key: key})
	expectError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = a.do(t, request{method: http.MethodGet, path: base + "/play", key: key})
	expectError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = a.do(t, request{method: http.MethodPost, path: base + "/chapters/1/start", key: key})
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var v game.PlayView
	decode(t, w, &v)
	if v.Scene.ID != "opening" || v.State.RelationshipScore != storyline.DefaultRelationship {
		t.Errorf("unexpected start view: scene %q score %d", v.Scene.ID, v.State.RelationshipScore)
	}
}

func TestPlayTransitions(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id

	a.do(t, request{method: http.MethodPost, path: base + "/chapters/1/start", key: key})

	w := a.do(t, request{method: http.MethodPost, path: base + "/play/choice", key: key, body: ChoiceRequest{ChoiceID: "humble"}})
	expectError(t, w, http.StatusConflict, "INVALID_TRANSITION")

	// choice_attitude is the seventh scene.
	w = a.do(t, request{method: http.MethodPost, path: base + "/play/jump", key: key, body: map[string]int{"sceneIndex": 6}})
	if w.Code != http.StatusOK {
		t.Fatalf("jump: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = a.do(t, request{method: http.MethodPost, path: base + "/play/choice", key: key, body: ChoiceRequest{ChoiceID: "sulk"}})
	expectError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = a.do(t, request{method: http.MethodPost, path: base + "/play/choice", key: key, body: `{"choice":"humble"}`})
	expectError(t, w, http.StatusBadRequest, "INVALID_INPUT")

	w = a.do(t, request{method: http.MethodPost, path: base + "/play/choice", key: key, body: ChoiceRequest{ChoiceID: "humble"}})
	if w.Code != http.StatusOK {
		t.Fatalf("choice: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out game.Outcome
	decode(t, w, &out)
	if out.Scene.ID != "humble_response" || out.State.RelationshipScore != 60 {
		t.Errorf("after choice: scene %q score %d", out.Scene.ID, out.State.RelationshipScore)
	}

	w = a.do(t, request{method: http.MethodPost, path: base + "/play/minigame", key: key, body: map[string]int{"score": 50}})
	expectError(t, w, http.StatusConflict, "INVALID_TRANSITION")

	w = a.do(t, request{method: http.MethodPost, path: base + "/play/back", key: key})
	if w.Code != http.StatusOK {
		t.Fatalf("back: expected 200, got %d", w.Code)
	}
	decode(t, w, &out)
	if out.Scene.ID != "choice_attitude" {
		t.Errorf("after back: scene %q", out.Scene.ID)
	}

	w = a.do(t, request{method: http.MethodPost, path: base + "/play/quiz", key: key, body: QuizRequest{Answers: []int{0, 0, 0}}})
	expectError(t, w, http.StatusConflict, "INVALID_TRANSITION")

	w = a.do(t, request{method: http.MethodPost, path: base + "/stats/playtime", key: key, body: PlayTimeRequest{Minutes: -3}})
	expectError(t, w, http.StatusBadRequest, "INVALID_INPUT")
}

func TestSaveSlots(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id

	w := a.do(t, request{method: http.MethodPut, path: base + "/saves/1", key: key})
	expectError(t, w, http.StatusNotFound, "NOT_FOUND")

	a.do(t, request{method: http.MethodPost, path: base + "/chapters/1/start", key: key})
	a.do(t, request{method: http.MethodPost, path: base + "/play/advance", key: key})

	w = a.do(t, request{method: http.MethodPut, path: base + "/saves/1", key: key})
	if w.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var slot storyline.SaveSlot
	decode(t, w, &slot)
	if slot.ChapterID != 1 || slot.SceneIndex != 1 || slot.Timestamp == 0 {
		t.Errorf("unexpected slot: %+v", slot)
	}

	w = a.do(t, request{method: http.MethodGet, path: base + "/saves", key: key})
	var slots storyline.SaveSlots
	decode(t, w, &slots)
	if slots[1] == nil || slots[0] != nil {
		t.Fatalf("unexpected slots: %+v", slots)
	}

	a.do(t, request{method: http.MethodPost, path: base + "/play/advance", key: key})
	w = a.do(t, request{method: http.MethodPost, path: base + "/saves/1/load", key: key})
	if w.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var v game.PlayView
	decode(t, w, &v)
	if v.State.SceneIndex != 1 {
		t.Errorf("loaded scene index %d, want 1", v.State.SceneIndex)
	}

	for _, path := range []string{"/saves/6", "/saves/x", "/saves/-1"} {
		w = a.do(t, request{method: http.MethodDelete, path: base + path, key: key})
		expectError(t, w, http.StatusNotFound, "NOT_FOUND")
	}

	w = a.do(t, request{method: http.MethodDelete, path: base + "/saves/1", key: key})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	w = a.do(t, request{method: http.MethodPost, path: base + "/saves/1/load", key: key})
	expectError(t, w, http.StatusNotFound, "NOT_FOUND")
}

func TestSettingsAndReset(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id

	w := a.do(t, request{method: http.MethodGet, path: base + "/settings", key: key})
	var s storyline.Settings
	decode(t, w, &s)
	if s != storyline.DefaultSettings() {
		t.Errorf("expected default settings, got %+v", s)
	}

	w = a.do(t, request{method: http.MethodPut, path: base + "/settings", key: key, body: `{"textSpeed":1.5,"autoAdvance":true}`})
	if w.Code != http.StatusOK {
		t.Fatalf("put settings: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decode(t, w, &s)
	if s.TextSpeed != 1.5 || !s.AutoAdvance || s.SoundVolume != 0.8 {
		t.Errorf("unexpected settings: %+v", s)
	}

	w = a.do(t, request{method: http.MethodPut, path: base + "/settings", key: key, body: `{"textSpeed":9}`})
	expectError(t, w, http.StatusBadRequest, "INVALID_INPUT")

	a.do(t, request{method: http.MethodPost, path: base + "/chapters/1/start", key: key})
	w = a.do(t, request{method: http.MethodPost, path: base + "/reset", key: key})
	if w.Code != http.StatusNoContent {
		t.Fatalf("reset: expected 204, got %d", w.Code)
	}

	w = a.do(t, request{method: http.MethodGet, path: base + "/play", key: key})
	expectError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = a.do(t, request{method: http.MethodGet, path: base + "/settings", key: key})
	decode(t, w, &s)
	if s.TextSpeed != 1.5 {
		t.Errorf("settings lost on reset: %+v", s)
	}
}

func TestProgressViews(t *testing.T) {
	a := newTestAPI(t)
	id, key := a.device(t)
	base := "/api/" + id

	for _, path := range []string{"/achievements", "/gallery", "/library?section=lore", "/stats", "/export"} {
		w := a.do(t, request{method: http.MethodGet, path: base + path, key: key})
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
	}

	w := a.do(t, request{method: http.MethodGet, path: base + "/export", key: key})
	if got := w.Header().Get("Content-Disposition"); got == "" {
		t.Error("export missing Content-Disposition")
	}
}
