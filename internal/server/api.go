package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lox/pebbles/internal/auth"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/store"
)

const maxRequestBody = 1 << 16

// CreateGameResponse is returned by POST /api/games.
type CreateGameResponse struct {
	SessionID string         `json:"sessionId"`
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Events    []game.Event   `json:"events"`
	State     game.GameState `json:"state"`
}

// ActionResponse is returned by POST /api/games/{id}/actions.
type ActionResponse struct {
	Events       []game.Event   `json:"events"`
	Acknowledged bool           `json:"acknowledged"`
	State        game.GameState `json:"state"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	store.Stats
	LiveSessions int `json:"live_sessions"`
	Connections  int `json:"connections"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var data InitData
	if err := decodeBody(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidMessage, err.Error())
		return
	}
	cfg, err := data.Resolve(s.defaults)
	if err != nil {
		writeErr(w, err)
		return
	}

	sess, events, err := s.sessions.Create(r.Context(), cfg, nil)
	if err != nil {
		writeErr(w, err)
		return
	}
	token, exp, err := s.issuer.Issue(sess.ID())
	if err != nil {
		s.logger.Error("Failed to issue token", "session", sess.ID(), "error", err)
		_ = s.sessions.Close(sess.ID())
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to issue token")
		return
	}
	state, err := sess.State()
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateGameResponse{
		SessionID: sess.ID(),
		Token:     token,
		ExpiresAt: exp,
		Events:    nonNil(events),
		State:     state,
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, err := s.sessions.State(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GameStateData{SessionID: id, State: state})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var action game.Action
	if err := decodeBody(r, &action); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidMessage, err.Error())
		return
	}

	if action.Type == game.ActionRestart && action.Init == nil {
		cfg := s.defaults
		action.Init = &cfg
	}

	id := chi.URLParam(r, "id")
	reply, err := s.sessions.Do(r.Context(), id, action)
	if err != nil && !errors.Is(err, game.ErrDelivery) {
		writeErr(w, err)
		return
	}
	if err != nil {
		// a websocket observer went away; the action itself was applied
		s.logger.Warn("Event delivery failed", "session", id, "error", err)
	}

	state, err := s.sessions.State(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Events:       nonNil(reply.Events),
		Acknowledged: reply.Acknowledged,
		State:        state,
	})
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeInvalidMessage, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	games, err := s.store.ListGames(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list games", "error", err)
		writeErr(w, err)
		return
	}
	if games == nil {
		games = []store.GameRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to compute stats", "error", err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:        stats,
		LiveSessions: s.sessions.Len(),
		Connections:  s.ConnectionCount(),
	})
}

// requireSessionToken only lets through requests whose bearer token was
// issued for the session named in the path.
func (s *Server) requireSessionToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.issuer.Validate(r.Context(), auth.BearerToken(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		if identity.SessionID != chi.URLParam(r, "id") {
			writeError(w, http.StatusForbidden, CodeUnauthorized, "token was issued for another session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]ErrorData{"error": {Code: code, Message: message}})
}

func writeErr(w http.ResponseWriter, err error) {
	code, status := classify(err)
	writeError(w, status, code, err.Error())
}

func nonNil(events []game.Event) []game.Event {
	if events == nil {
		return []game.Event{}
	}
	return events
}
