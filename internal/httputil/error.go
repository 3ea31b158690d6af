package httputil

import (
	"log/slog"
	"net/http"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
)

type ErrorResponse struct {
	Error   bracket.Kind `json:"error"`
	Message string       `json:"message"`
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(kind bracket.Kind) int {
	switch kind {
	case bracket.KindValidation:
		return http.StatusBadRequest
	case bracket.KindNotFound:
		return http.StatusNotFound
	case bracket.KindConflict:
		return http.StatusConflict
	case bracket.KindForbidden:
		return http.StatusForbidden
	case bracket.KindTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err with the status of its kind. Internal errors are logged
// and their details kept from the client.
func Error(w http.ResponseWriter, err error) {
	kind := bracket.KindOf(err)
	status := StatusFor(kind)

	message := err.Error()
	switch {
	case status >= http.StatusInternalServerError && kind == bracket.KindInternal:
		slog.Error("request failed", "error", err)
		message = "Internal Server Error"
	case status >= http.StatusInternalServerError:
		slog.Error("request failed", "kind", kind, "error", err)
	default:
		slog.Warn("request rejected", "kind", kind, "error", err)
	}
	WriteJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

func BadRequest(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("bad request", "message", msg, "error", err)
	} else {
		slog.Warn("bad request", "message", msg)
	}
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: bracket.KindValidation, Message: msg})
}

func NotFound(w http.ResponseWriter, msg string, err error) {
	if err != nil {
		slog.Warn("not found", "message", msg, "error", err)
	} else {
		slog.Warn("not found", "message", msg)
	}
	WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: bracket.KindNotFound, Message: msg})
}
