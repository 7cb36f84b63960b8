package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/internal/service"
	"github.com/splitstack/support-assistant/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeConversationError maps conversation operation failures onto HTTP
// statuses: unknown ids are a 404, everything else is logged and reported
// as a 500 carrying message.
func writeConversationError(w http.ResponseWriter, log *logger.Logger, err error, message string) {
	if errors.Is(err, service.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	log.Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}
