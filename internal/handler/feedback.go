package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/internal/middleware"
	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/service"
	"github.com/splitstack/support-assistant/internal/store"
	"github.com/splitstack/support-assistant/pkg/logger"
)

// FeedbackHandler handles message feedback endpoints.
type FeedbackHandler struct {
	service *service.FeedbackService
	logger  *logger.Logger
}

// NewFeedbackHandler creates a feedback handler.
func NewFeedbackHandler(svc *service.FeedbackService, log *logger.Logger) *FeedbackHandler {
	return &FeedbackHandler{service: svc, logger: log}
}

// Submit handles POST /api/v1/messages/{id}/feedback
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	messageID := chi.URLParam(r, "id")

	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fb, err := h.service.SubmitFeedback(ctx, messageID, req.Type, req.Rating, req.Comment, middleware.GetUserID(ctx))
	if err != nil {
		if errors.Is(err, service.ErrInvalidFeedbackType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn("feedback submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "feedback failed")
		return
	}

	writeJSON(w, http.StatusCreated, fb)
}

// Get handles GET /api/v1/messages/{id}/feedback
func (h *FeedbackHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	messageID := chi.URLParam(r, "id")

	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fb, err := h.service.GetFeedback(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no feedback for message")
			return
		}
		h.logger.Error("failed to load feedback", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load feedback")
		return
	}

	writeJSON(w, http.StatusOK, fb)
}
