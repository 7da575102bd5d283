package server

import (
	"errors"
	"net/http"

	"github.com/lox/pebbles/internal/auth"
	"github.com/lox/pebbles/internal/game"
	"github.com/lox/pebbles/internal/session"
)

// Error codes shared by the websocket and HTTP APIs.
const (
	CodeInvalidConfig  = "invalid_config"
	CodeNotInitialized = "not_initialized"
	CodeRandomSource   = "random_source"
	CodeUnknownAction  = "unknown_action"
	CodeNotFound       = "not_found"
	CodeUnauthorized   = "unauthorized"
	CodeInvalidMessage = "invalid_message"
	CodeDelivery       = "delivery_failed"
	CodeInternal       = "internal"
)

// classify maps an error to its wire code and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, game.ErrInvalidConfig):
		return CodeInvalidConfig, http.StatusBadRequest
	case errors.Is(err, game.ErrNotInitialized):
		return CodeNotInitialized, http.StatusConflict
	case errors.Is(err, game.ErrUnknownAction):
		return CodeUnknownAction, http.StatusBadRequest
	case errors.Is(err, game.ErrRandomSource):
		return CodeRandomSource, http.StatusServiceUnavailable
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		return CodeNotFound, http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidToken):
		return CodeUnauthorized, http.StatusUnauthorized
	case errors.Is(err, game.ErrDelivery):
		return CodeDelivery, http.StatusInternalServerError
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}
