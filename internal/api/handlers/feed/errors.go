package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"Murmur/internal/core/feeds"
	"Murmur/internal/core/posts"
)

// errorBody is the envelope every handler error uses.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already sent; all that's left is the log.
		slog.Error("failed to encode response", "error", err)
	}
}

// handleServiceError maps core errors to HTTP statuses. Generation errors
// already carry only the cause message, never the infra failure type.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case posts.IsValidationError(err):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case posts.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case feeds.IsGenerationError(err):
		writeError(w, http.StatusInternalServerError, "FeedGenerationFailed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "InternalError", "An unexpected error occurred")
	}
}
