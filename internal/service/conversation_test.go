package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitstack/support-assistant/internal/identity"
	"github.com/splitstack/support-assistant/internal/knowledge"
	"github.com/splitstack/support-assistant/internal/llm"
	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/store"
	"github.com/splitstack/support-assistant/internal/synthesizer"
	"github.com/splitstack/support-assistant/pkg/logger"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []*model.SupportEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event *model.SupportEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *capturingPublisher) first() *model.SupportEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}
	return p.events[0]
}

type recordingLLM struct {
	response string
	lastReq  *llm.CompletionRequest
}

func (c *recordingLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.lastReq = req
	return &llm.CompletionResponse{Content: c.response}, nil
}

func (c *recordingLLM) Name() string { return "recording" }

// replyFailingStore fails assistant-message writes once armed, leaving the
// greeting seed and user/error writes intact.
type replyFailingStore struct {
	*store.MemoryStore
	armed bool
}

func (s *replyFailingStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	if s.armed && msg.Role == model.RoleAssistant {
		return errors.New("write failed")
	}
	return s.MemoryStore.CreateMessage(ctx, msg)
}

type panickingKnowledgeStore struct{}

func (panickingKnowledgeStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]store.SearchHit, error) {
	panic("knowledge index corrupted")
}

func (panickingKnowledgeStore) IncrementUsage(ctx context.Context, entryID string) error {
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	return log
}

func newTestService(t *testing.T) (*ConversationService, *store.MemoryStore, *capturingPublisher) {
	t.Helper()
	mem := store.NewMemoryStore()
	log := testLogger(t)
	pub := &capturingPublisher{}
	retriever := knowledge.NewRetriever(mem, log)
	synth := synthesizer.New(nil, log)
	svc := NewConversationService(mem, mem, retriever, synth, pub, log)
	return svc, mem, pub
}

func anonIdentity(id string) identity.Identity {
	return identity.Identity{SessionID: id}
}

func TestInitializeCreatesConversationWithGreeting(t *testing.T) {
	svc, _, _ := newTestService(t)

	session, err := svc.InitializeOrResume(context.Background(), anonIdentity("s1"), model.ClientMeta{
		UserAgent: "test-agent",
		Platform:  "web",
		Locale:    "en-US",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusActive, session.Conversation.Status)
	assert.Equal(t, "s1", session.Conversation.SessionID)
	assert.Equal(t, "test-agent", session.Conversation.Metadata[model.MetaUserAgent])

	require.Len(t, session.Messages, 1)
	assert.Equal(t, model.RoleAssistant, session.Messages[0].Role)
	assert.Contains(t, session.Messages[0].Content, "SplitStack assistant")
}

func TestResumeReturnsSameConversationWhileActive(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)

	second, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)

	require.NoError(t, svc.Close(ctx, first.Conversation.ID))

	third, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, first.Conversation.ID, third.Conversation.ID, "closed conversations are not reopened")
}

func TestResumeIsPerIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	b, err := svc.InitializeOrResume(ctx, identity.Identity{UserID: "u1"}, model.ClientMeta{})
	require.NoError(t, err)

	assert.NotEqual(t, a.Conversation.ID, b.Conversation.ID)
}

func TestPostUserMessagePersistsExchangeInOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	convID := session.Conversation.ID

	reply, err := svc.PostUserMessage(ctx, convID, "How do I add funds to my wallet?", model.SituationalContext{})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, model.RoleAssistant, reply.Role)
	assert.Contains(t, reply.Content, "Add funds", "no model and no knowledge yields the wallet fallback")

	reply2, err := svc.PostUserMessage(ctx, convID, "thanks, one more thing", model.SituationalContext{})
	require.NoError(t, err)

	history, err := svc.LoadHistory(ctx, convID)
	require.NoError(t, err)
	require.Len(t, history, 5) // greeting + 2 exchanges

	assert.Equal(t, model.RoleAssistant, history[0].Role)
	assert.Equal(t, "How do I add funds to my wallet?", history[1].Content)
	assert.Equal(t, reply.ID, history[2].ID)
	assert.Equal(t, "thanks, one more thing", history[3].Content)
	assert.Equal(t, reply2.ID, history[4].ID)
}

func TestPostUserMessageRecordsResponseSource(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	mem.SeedKnowledge(model.KnowledgeEntry{
		ID:        "kb1",
		Question:  "How do I join a group?",
		Answer:    "Open the invite link from your friend.",
		Category:  model.CategoryGroups,
		Relevance: 9,
	})

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)

	reply, err := svc.PostUserMessage(ctx, session.Conversation.ID, "How do I join a group?", model.SituationalContext{})
	require.NoError(t, err)

	assert.Equal(t, "Open the invite link from your friend.", reply.Content)
	assert.Equal(t, string(model.SourceKnowledgeBase), reply.Metadata[model.MetaResponseSource])
	assert.Equal(t, true, reply.Metadata[model.MetaKnowledgeUsed])
}

func TestModelTurnsCarrySingleNewUserMessage(t *testing.T) {
	mem := store.NewMemoryStore()
	log := testLogger(t)
	client := &recordingLLM{response: "model answer"}
	retriever := knowledge.NewRetriever(mem, log)
	synth := synthesizer.New(client, log)
	svc := NewConversationService(mem, mem, retriever, synth, nil, log)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	convID := session.Conversation.ID

	reply, err := svc.PostUserMessage(ctx, convID, "when do deposits arrive?", model.SituationalContext{})
	require.NoError(t, err)
	assert.Equal(t, "model answer", reply.Content)

	require.NotNil(t, client.lastReq)
	turns := client.lastReq.Messages
	require.Len(t, turns, 1, "greeting is trimmed and the question appears once")
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "when do deposits arrive?", turns[0].Content)

	_, err = svc.PostUserMessage(ctx, convID, "and withdrawals?", model.SituationalContext{})
	require.NoError(t, err)

	turns = client.lastReq.Messages
	require.Len(t, turns, 3)
	assert.Equal(t, []string{"user", "assistant", "user"}, []string{turns[0].Role, turns[1].Role, turns[2].Role})
	assert.Equal(t, "and withdrawals?", turns[2].Content)

	count := 0
	for _, turn := range turns {
		if turn.Content == "and withdrawals?" {
			count++
		}
	}
	assert.Equal(t, 1, count, "the new user message is sent exactly once")
}

func TestReplyWriteFailureReturnsErrorMessage(t *testing.T) {
	mem := store.NewMemoryStore()
	log := testLogger(t)
	failing := &replyFailingStore{MemoryStore: mem}
	retriever := knowledge.NewRetriever(mem, log)
	synth := synthesizer.New(nil, log)
	svc := NewConversationService(mem, failing, retriever, synth, nil, log)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	failing.armed = true

	reply, err := svc.PostUserMessage(ctx, session.Conversation.ID, "how do groups work?", model.SituationalContext{})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, model.RoleError, reply.Role)
	assert.Equal(t, errorApology, reply.Content)

	history, err := mem.ListMessages(ctx, session.Conversation.ID)
	require.NoError(t, err)
	require.Len(t, history, 3) // greeting, question, apology
	assert.Equal(t, model.RoleError, history[2].Role)
}

func TestSynthesisPanicReturnsErrorMessage(t *testing.T) {
	mem := store.NewMemoryStore()
	log := testLogger(t)
	pub := &capturingPublisher{}
	retriever := knowledge.NewRetriever(panickingKnowledgeStore{}, log)
	synth := synthesizer.New(nil, log)
	svc := NewConversationService(mem, mem, retriever, synth, pub, log)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)

	reply, err := svc.PostUserMessage(ctx, session.Conversation.ID, "anything", model.SituationalContext{})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, model.RoleError, reply.Role)
	assert.Equal(t, errorApology, reply.Content)

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, model.EventTypeSynthesisError, pub.first().Type)
}

func TestPostUserMessageRejectsUnknownConversation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.PostUserMessage(context.Background(), "missing", "hello", model.SituationalContext{})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestPostUserMessageRejectsClosedConversation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, session.Conversation.ID))

	_, err = svc.PostUserMessage(ctx, session.Conversation.ID, "hello", model.SituationalContext{})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, session.Conversation.ID))
	require.NoError(t, svc.Close(ctx, session.Conversation.ID))

	conv, err := mem.GetConversation(ctx, session.Conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, conv.Status)
}

func TestEscalateTransitionsAndAppendsSystemMessage(t *testing.T) {
	svc, mem, pub := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	convID := session.Conversation.ID

	ok := svc.Escalate(ctx, convID, "user requested human support", "u1")
	assert.True(t, ok)

	conv, err := mem.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEscalated, conv.Status)
	assert.Equal(t, "user requested human support", conv.Metadata[model.MetaEscalationReason])
	assert.NotEmpty(t, conv.Metadata[model.MetaEscalatedAt])

	history, err := svc.LoadHistory(ctx, convID)
	require.NoError(t, err)

	var systemMessages []model.Message
	for _, m := range history {
		if m.Role == model.RoleSystem {
			systemMessages = append(systemMessages, m)
		}
	}
	require.Len(t, systemMessages, 1)
	assert.Contains(t, systemMessages[0].Content, "user requested human support")

	assert.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEscalateTwiceKeepsSingleSystemMessage(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	convID := session.Conversation.ID

	assert.True(t, svc.Escalate(ctx, convID, "first", ""))
	assert.True(t, svc.Escalate(ctx, convID, "second", ""), "repeat escalation reports success")

	conv, err := mem.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEscalated, conv.Status, "escalation is one-way")
	assert.Equal(t, "first", conv.Metadata[model.MetaEscalationReason])

	history, err := svc.LoadHistory(ctx, convID)
	require.NoError(t, err)
	count := 0
	for _, m := range history {
		if m.Role == model.RoleSystem {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEscalateUnknownOrClosedConversation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.False(t, svc.Escalate(ctx, "missing", "reason", ""))

	session, err := svc.InitializeOrResume(ctx, anonIdentity("s1"), model.ClientMeta{})
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx, session.Conversation.ID))

	assert.False(t, svc.Escalate(ctx, session.Conversation.ID, "reason", ""))
}

func TestGreetingFollowsTimeOfDay(t *testing.T) {
	morning := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	afternoon := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)

	assert.Contains(t, greeting(morning), "Good morning")
	assert.Contains(t, greeting(afternoon), "Good afternoon")
	assert.Contains(t, greeting(evening), "Good evening")
}
