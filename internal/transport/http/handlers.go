package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/codegen"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/game"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

const (
	maxBodyBytes = 1 << 20
	qrSize       = 320
)

// API serves the REST surface over the quiz and game services.
type API struct {
	quizzes *app.QuizService
	games   *app.GameService
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

type leaveRequest struct {
	PlayerID string `json:"playerId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) listQuizzes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := a.quizzes.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) createQuiz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in domain.QuizInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	quiz, err := a.quizzes.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (a *API) getQuiz(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	quiz, err := a.quizzes.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (a *API) updateQuiz(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in domain.QuizInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	quiz, err := a.quizzes.Update(r.Context(), ps.ByName("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (a *API) deleteQuiz(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := a.quizzes.Delete(r.Context(), ps.ByName("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.QuizID == "" {
		writeError(w, r, fmt.Errorf("%w: quizId is required", domain.ErrValidation))
		return
	}
	session, err := a.games.CreateSession(r.Context(), req.QuizID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	detail, err := a.games.GetSession(r.Context(), ps.ByName("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) snapshot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	snap, err := a.games.Snapshot(r.Context(), ps.ByName("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) updateSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req game.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := a.games.UpdateStatus(r.Context(), ps.ByName("code"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) transition(fn func(context.Context, string) (domain.GameSession, error)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		session, err := fn(r.Context(), ps.ByName("code"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func (a *API) join(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	player, err := a.games.Join(r.Context(), ps.ByName("code"), req.Nickname)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (a *API) leave(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req leaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.games.Leave(r.Context(), ps.ByName("code"), req.PlayerID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var sub app.Submission
	if err := decodeJSON(w, r, &sub); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := a.games.SubmitAnswer(r.Context(), ps.ByName("code"), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	standings, err := a.games.Leaderboard(r.Context(), ps.ByName("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

func (a *API) results(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	results, err := a.games.QuestionResults(r.Context(), ps.ByName("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// joinQR renders a PNG QR code of the join link for the session.
func (a *API) joinQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	session, err := a.games.Snapshot(r.Context(), ps.ByName("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	url := scheme + "://" + r.Host + "/join/" + session.Session.Code

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, r, fmt.Errorf("encode qr: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Unexpected errors are
// logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: clientMessage(err)})
}

func clientMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func normalizedCode(r *http.Request) (string, error) {
	code := codegen.Normalize(r.URL.Query().Get("code"))
	if !codegen.Valid(code) {
		return "", fmt.Errorf("%w: invalid session code", domain.ErrValidation)
	}
	return code, nil
}
