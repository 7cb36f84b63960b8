package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitstack/support-assistant/internal/identity"
	"github.com/splitstack/support-assistant/internal/knowledge"
	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/service"
	"github.com/splitstack/support-assistant/internal/store"
	"github.com/splitstack/support-assistant/internal/synthesizer"
	"github.com/splitstack/support-assistant/pkg/logger"
)

type sessionPayload struct {
	Identity     identity.Identity  `json:"identity"`
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
}

func newTestRouter(t *testing.T) (*chi.Mux, *store.MemoryStore) {
	t.Helper()

	log, err := logger.New("error")
	require.NoError(t, err)

	mem := store.NewMemoryStore()
	resolver := identity.NewResolver(identity.NewMemorySessionStore(), log)
	retriever := knowledge.NewRetriever(mem, log)
	synth := synthesizer.New(nil, log)

	conversationSvc := service.NewConversationService(mem, mem, retriever, synth, nil, log)
	feedbackSvc := service.NewFeedbackService(mem, mem, conversationSvc, log)

	sessionHandler := NewSessionHandler(resolver, conversationSvc, log)
	conversationHandler := NewConversationHandler(conversationSvc, feedbackSvc, log)
	feedbackHandler := NewFeedbackHandler(feedbackSvc, log)

	r := chi.NewRouter()
	r.Post("/api/v1/session", sessionHandler.Start)
	r.Route("/api/v1/conversations/{id}", func(r chi.Router) {
		r.Get("/messages", conversationHandler.History)
		r.Post("/messages", conversationHandler.PostMessage)
		r.Post("/close", conversationHandler.Close)
		r.Post("/escalate", conversationHandler.Escalate)
	})
	r.Route("/api/v1/messages/{id}", func(r chi.Router) {
		r.Post("/feedback", feedbackHandler.Submit)
		r.Get("/feedback", feedbackHandler.Get)
	})
	return r, mem
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func startSession(t *testing.T, r http.Handler) sessionPayload {
	t.Helper()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/session", model.StartSessionRequest{
		DeviceKey: "device-1",
		Client:    model.ClientMeta{Platform: "web", Locale: "en-US"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payload sessionPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestSessionFlow(t *testing.T) {
	r, mem := newTestRouter(t)
	mem.SeedKnowledge(model.KnowledgeEntry{
		ID:        "kb1",
		Question:  "How do I join a group?",
		Answer:    "Open the invite link from your friend.",
		Category:  model.CategoryGroups,
		Relevance: 9,
	})

	session := startSession(t, r)
	assert.Equal(t, model.StatusActive, session.Conversation.Status)
	assert.True(t, session.Identity.IsAnonymous())
	require.Len(t, session.Messages, 1)
	assert.Equal(t, model.RoleAssistant, session.Messages[0].Role)

	convPath := "/api/v1/conversations/" + session.Conversation.ID

	rec := doJSON(t, r, http.MethodPost, convPath+"/messages", model.PostMessageRequest{
		Content: "How do I join a group?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var posted model.PostMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &posted))
	require.NotNil(t, posted.Reply)
	assert.Equal(t, "Open the invite link from your friend.", posted.Reply.Content)

	rec = doJSON(t, r, http.MethodGet, convPath+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history struct {
		Messages []model.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history.Messages, 3) // greeting, question, answer
}

func TestSessionResumesSameConversation(t *testing.T) {
	r, _ := newTestRouter(t)

	first := startSession(t, r)
	second := startSession(t, r)

	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)
	assert.Equal(t, first.Identity.SessionID, second.Identity.SessionID)
}

func TestFeedbackRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t)
	session := startSession(t, r)
	messageID := session.Messages[0].ID

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages/"+messageID+"/feedback", model.SubmitFeedbackRequest{
		Type:    model.FeedbackNotHelpful,
		Comment: "did not answer my question",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodGet, "/api/v1/messages/"+messageID+"/feedback", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fb model.Feedback
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fb))
	assert.Equal(t, model.FeedbackNotHelpful, fb.Type)
	assert.Equal(t, "did not answer my question", fb.Comment)
}

func TestFeedbackRejectsInvalidType(t *testing.T) {
	r, _ := newTestRouter(t)
	session := startSession(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/messages/"+session.Messages[0].ID+"/feedback", model.SubmitFeedbackRequest{
		Type: "meh",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEscalateEndpoint(t *testing.T) {
	r, mem := newTestRouter(t)
	session := startSession(t, r)
	convPath := "/api/v1/conversations/" + session.Conversation.ID

	rec := doJSON(t, r, http.MethodPost, convPath+"/escalate", model.EscalateRequest{Reason: "need a human"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp model.EscalateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Escalated)

	conv, err := mem.GetConversation(context.Background(), session.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEscalated, conv.Status)

	// Messages are rejected once a human owns the conversation.
	rec = doJSON(t, r, http.MethodPost, convPath+"/messages", model.PostMessageRequest{Content: "anyone there?"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCloseEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	session := startSession(t, r)
	convPath := "/api/v1/conversations/" + session.Conversation.ID

	rec := doJSON(t, r, http.MethodPost, convPath+"/close", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodPost, convPath+"/messages", model.PostMessageRequest{Content: "hello again"})
	assert.NotEqual(t, http.StatusCreated, rec.Code)

	next := startSession(t, r)
	assert.NotEqual(t, session.Conversation.ID, next.Conversation.ID)
}

func TestUnknownConversationIsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	convPath := "/api/v1/conversations/" + uuid.NewString()

	rec := doJSON(t, r, http.MethodGet, convPath+"/messages", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodPost, convPath+"/messages", model.PostMessageRequest{Content: "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodPost, convPath+"/close", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidationRejectsMalformedIDs(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/conversations/not-a-uuid/messages", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/messages/not-a-uuid/feedback", model.SubmitFeedbackRequest{Type: model.FeedbackHelpful})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageRejectsEmptyContent(t *testing.T) {
	r, _ := newTestRouter(t)
	session := startSession(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/conversations/"+session.Conversation.ID+"/messages", model.PostMessageRequest{
		Content: "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
