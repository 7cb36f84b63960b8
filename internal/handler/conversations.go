package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/splitstack/support-assistant/internal/middleware"
	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/service"
	"github.com/splitstack/support-assistant/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	feedback      *service.FeedbackService
	logger        *logger.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(conversations *service.ConversationService, feedback *service.FeedbackService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		feedback:      feedback,
		logger:        log,
	}
}

// History handles GET /api/v1/conversations/{id}/messages
func (h *ConversationHandler) History(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.conversations.LoadHistory(ctx, conversationID)
	if err != nil {
		writeConversationError(w, h.logger, err, "failed to load history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// PostMessage handles POST /api/v1/conversations/{id}/messages
func (h *ConversationHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Context.Authenticated = middleware.GetUserID(ctx) != ""

	reply, err := h.conversations.PostUserMessage(ctx, conversationID, req.Content, req.Context)
	if err != nil {
		writeConversationError(w, h.logger, err, "failed to post message")
		return
	}

	writeJSON(w, http.StatusCreated, &model.PostMessageResponse{Reply: reply})
}

// Close handles POST /api/v1/conversations/{id}/close
func (h *ConversationHandler) Close(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.conversations.Close(ctx, conversationID); err != nil {
		writeConversationError(w, h.logger, err, "failed to close conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Escalate handles POST /api/v1/conversations/{id}/escalate
func (h *ConversationHandler) Escalate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "user requested human support"
	}

	escalated := h.feedback.Escalate(ctx, conversationID, req.Reason, middleware.GetUserID(ctx))

	resp := &model.EscalateResponse{Escalated: escalated}
	if escalated {
		resp.Status = model.StatusEscalated
	}
	writeJSON(w, http.StatusOK, resp)
}
