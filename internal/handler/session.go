// Package handler provides HTTP handlers for the support assistant API.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/internal/identity"
	"github.com/splitstack/support-assistant/internal/middleware"
	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/service"
	"github.com/splitstack/support-assistant/pkg/logger"
)

// SessionHandler resolves identities and opens or resumes conversations.
type SessionHandler struct {
	resolver *identity.Resolver
	service  *service.ConversationService
	logger   *logger.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(resolver *identity.Resolver, svc *service.ConversationService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		resolver: resolver,
		service:  svc,
		logger:   log,
	}
}

// startSessionResponse is the session payload: the resolved identity plus
// the active conversation and its history.
type startSessionResponse struct {
	Identity     identity.Identity   `json:"identity"`
	Conversation *model.Conversation `json:"conversation"`
	Messages     []model.Message     `json:"messages"`
}

// Start handles POST /api/v1/session
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Client.UserAgent == "" {
		req.Client.UserAgent = r.UserAgent()
	}

	id := h.resolver.Resolve(ctx, middleware.GetUserID(ctx), req.DeviceKey)

	session, err := h.service.InitializeOrResume(ctx, id, req.Client)
	if err != nil {
		h.logger.Error("failed to initialize session",
			zap.String("correlation_id", middleware.GetCorrelationID(ctx)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to initialize session")
		return
	}

	writeJSON(w, http.StatusOK, startSessionResponse{
		Identity:     id,
		Conversation: session.Conversation,
		Messages:     session.Messages,
	})
}
