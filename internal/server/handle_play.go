package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/storyline/internal/game"
	"github.com/playperu/storyline/internal/storyline"
)

type ChoiceRequest struct {
	ChoiceID string `json:"choiceId"`
}

type MinigameRequest struct {
	Score *int `json:"score"`
}

type QuizRequest struct {
	Answers []int `json:"answers"`
}

type JumpRequest struct {
	SceneIndex *int `json:"sceneIndex"`
}

func handleChapters(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chapters, err := d.Game.Chapters(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, chapters)
	}
}

func handleStartChapter(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "chapter not found")
			return
		}
		v, err := d.Game.Start(r.Context(), playerFrom(r), id)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handlePlay(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := d.Game.Current(r.Context(), playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// transition adapts a body-less play operation.
func transition(d Deps, op func(*game.Service, *http.Request, game.Player) (game.Outcome, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := op(d.Game, r, playerFrom(r))
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleAdvance(d Deps) http.HandlerFunc {
	return transition(d, func(s *game.Service, r *http.Request, p game.Player) (game.Outcome, error) {
		return s.Advance(r.Context(), p)
	})
}

func handleBack(d Deps) http.HandlerFunc {
	return transition(d, func(s *game.Service, r *http.Request, p game.Player) (game.Outcome, error) {
		return s.Back(r.Context(), p)
	})
}

func handleJump(d Deps) http.HandlerFunc {
	return transition(d, func(s *game.Service, r *http.Request, p game.Player) (game.Outcome, error) {
		var req JumpRequest
		if err := readJSON(r, &req); err != nil {
			return game.Outcome{}, err
		}
		if req.SceneIndex == nil {
			return game.Outcome{}, storyline.New(storyline.CodeInvalidInput, "sceneIndex is required")
		}
		return s.Jump(r.Context(), p, *req.SceneIndex)
	})
}

func handleChoice(d Deps) http.HandlerFunc {
	return transition(d, func(s *game.Service, r *http.Request, p game.Player) (game.Outcome, error) {
		var req ChoiceRequest
		if err := readJSON(r, &req); err != nil {
			return game.Outcome{}, err
		}
		if req.ChoiceID == "" {
			return game.Outcome{}, storyline.New(storyline.CodeInvalidInput, "choiceId is required")
		}
		return s.Choose(r.Context(), p, req.ChoiceID)
	})
}

func handleMinigame(d Deps) http.HandlerFunc {
	return transition(d, func(s *game.Service, r *http.Request, p game.Player) (game.Outcome, error) {
		var req MinigameRequest
		if err := readJSON(r, &req); err != nil {
			return game.Outcome{}, err
		}
		if req.Score == nil {
			return game.Outcome{}, storyline.New(storyline.CodeInvalidInput, "score is required")
		}
		return s.CompleteMinigame(r.Context(), p, *req.Score)
	})
}

func handleQuiz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QuizRequest
		if err := readJSON(r, &req); err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		res, err := d.Game.SubmitQuiz(r.Context(), playerFrom(r), req.Answers)
		if err != nil {
			writeErr(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
