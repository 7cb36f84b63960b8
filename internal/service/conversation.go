// Package service provides the conversation manager and the feedback and
// escalation handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/internal/identity"
	"github.com/splitstack/support-assistant/internal/knowledge"
	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/store"
	"github.com/splitstack/support-assistant/internal/synthesizer"
	"github.com/splitstack/support-assistant/pkg/logger"
	"github.com/splitstack/support-assistant/pkg/metrics"
)

// EventPublisher publishes support events for external consumers.
// Publication is best-effort; failures never block the conversation.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.SupportEvent) error
}

// errorApology is the canned reply persisted as an error-role message when
// an exchange fails unexpectedly.
const errorApology = "Sorry, something went wrong on our side and I couldn't answer that. Please try again in a moment, or email support@splitstack.app if the problem persists."

// ErrConversationNotFound is returned for operations on unknown
// conversation ids.
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationService owns conversation lifecycle, message ordering and
// persistence, and greeting generation. It is stateless; callers hold the
// ConversationSession value.
type ConversationService struct {
	conversations store.ConversationStore
	messages      store.MessageStore
	retriever     *knowledge.Retriever
	synth         *synthesizer.Synthesizer
	events        EventPublisher
	logger        *logger.Logger
}

// NewConversationService creates a conversation service. events may be nil
// when no broker is configured.
func NewConversationService(
	conversations store.ConversationStore,
	messages store.MessageStore,
	retriever *knowledge.Retriever,
	synth *synthesizer.Synthesizer,
	events EventPublisher,
	log *logger.Logger,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		retriever:     retriever,
		synth:         synth,
		events:        events,
		logger:        log,
	}
}

// InitializeOrResume returns the identity's most recent active conversation
// with its history, or creates a new conversation seeded with a greeting.
// The find-or-create is best-effort idempotent: two concurrent calls that
// both miss may create duplicate conversations, and the newest one wins on
// the next resume.
func (s *ConversationService) InitializeOrResume(ctx context.Context, id identity.Identity, client model.ClientMeta) (*model.ConversationSession, error) {
	existing, err := s.conversations.FindActiveConversation(ctx, id.UserID, id.SessionID)
	if err == nil {
		history, err := s.messages.ListMessages(ctx, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		return &model.ConversationSession{Conversation: existing, Messages: history}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up active conversation: %w", err)
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    id.UserID,
		SessionID: id.SessionID,
		Status:    model.StatusActive,
		Metadata: model.Metadata{
			model.MetaUserAgent: client.UserAgent,
			model.MetaPlatform:  client.Platform,
			model.MetaLocale:    client.Locale,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.conversations.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	greetingMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleAssistant,
		Content:        greeting(now),
		CreatedAt:      now,
	}
	if err := s.messages.CreateMessage(ctx, greetingMsg); err != nil {
		return nil, fmt.Errorf("failed to seed greeting: %w", err)
	}

	metrics.ConversationsTotal.Inc()
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()
	s.logger.WithConversation(conv.ID).Info("conversation created",
		zap.Bool("anonymous", id.IsAnonymous()),
	)

	return &model.ConversationSession{
		Conversation: conv,
		Messages:     []model.Message{*greetingMsg},
	}, nil
}

// PostUserMessage persists the user's message, drives synthesis, and
// persists the reply. The returned message has role assistant on success
// and role error when synthesis or the assistant write failed; in both
// cases the user gets visible text. Only a failed user-message write is
// returned as an error, since the conversational content itself was lost.
func (s *ConversationService) PostUserMessage(ctx context.Context, conversationID, text string, sctx model.SituationalContext) (*model.Message, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv.Status != model.StatusActive {
		return nil, fmt.Errorf("conversation is %s", conv.Status)
	}

	// History is captured before the new message is persisted; the
	// synthesizer appends the new user turn itself.
	history, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		// Synthesis can proceed without history; the reply just loses
		// conversational context.
		s.logger.Warn("failed to load history for synthesis", zap.Error(err))
		history = nil
	}

	userMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        text,
		Metadata:       model.Metadata{model.MetaCurrentPage: sctx.CurrentPage},
		CreatedAt:      time.Now(),
	}
	if err := s.messages.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	reply := s.reply(ctx, conversationID, text, sctx, history)

	if err := s.messages.CreateMessage(ctx, reply); err != nil {
		s.logger.WithConversation(conversationID).Error("failed to persist reply", zap.Error(err))
		errMsg := s.errorMessage(conversationID)
		if werr := s.messages.CreateMessage(ctx, errMsg); werr != nil {
			return nil, fmt.Errorf("failed to persist reply: %w", err)
		}
		metrics.MessagesTotal.WithLabelValues(string(model.RoleError)).Inc()
		return errMsg, nil
	}

	metrics.MessagesTotal.WithLabelValues(string(reply.Role)).Inc()
	return reply, nil
}

// reply runs retrieval and synthesis over the pre-existing history,
// converting any panic into an error-role message so the caller's flow
// never breaks. history must not contain the new user message.
func (s *ConversationService) reply(ctx context.Context, conversationID, text string, sctx model.SituationalContext, history []model.Message) (msg *model.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithConversation(conversationID).Error("synthesis panicked", zap.Any("panic", r))
			s.publishEvent(conversationID, model.EventTypeSynthesisError, fmt.Sprint(r), "")
			msg = s.errorMessage(conversationID)
		}
	}()

	entries := s.retriever.Search(ctx, text)
	result := s.synth.Synthesize(ctx, text, history, sctx, entries)

	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        result.Text,
		Metadata: model.Metadata{
			model.MetaKnowledgeUsed:  result.UsedKnowledge,
			model.MetaResponseSource: string(result.Source),
		},
		CreatedAt: time.Now(),
	}
}

func (s *ConversationService) errorMessage(conversationID string) *model.Message {
	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleError,
		Content:        errorApology,
		CreatedAt:      time.Now(),
	}
}

// LoadHistory returns all messages for the conversation in creation order.
func (s *ConversationService) LoadHistory(ctx context.Context, conversationID string) ([]model.Message, error) {
	if _, err := s.conversations.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return s.messages.ListMessages(ctx, conversationID)
}

// Close sets the conversation status to closed. Idempotent: closing a
// closed conversation is a no-op.
func (s *ConversationService) Close(ctx context.Context, conversationID string) error {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if conv.Status == model.StatusClosed {
		return nil
	}

	conv.Status = model.StatusClosed
	if err := s.conversations.SaveConversation(ctx, conv); err != nil {
		return fmt.Errorf("failed to close conversation: %w", err)
	}
	return nil
}

// Escalate transitions an active conversation to escalated, records the
// reason and timestamp in metadata, and appends one system message. The
// transition is one-way; escalating an already escalated conversation
// reports true without a second system message. Returns false when the
// write fails, since escalation failure must not block the user's chat.
func (s *ConversationService) Escalate(ctx context.Context, conversationID, reason, raterID string) bool {
	log := s.logger.WithConversation(conversationID)

	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		log.Warn("escalation target not found", zap.Error(err))
		return false
	}

	switch conv.Status {
	case model.StatusEscalated:
		return true
	case model.StatusClosed:
		return false
	}

	now := time.Now()
	conv.Status = model.StatusEscalated
	if conv.Metadata == nil {
		conv.Metadata = model.Metadata{}
	}
	conv.Metadata[model.MetaEscalationReason] = reason
	conv.Metadata[model.MetaEscalatedAt] = now.Format(time.RFC3339)

	if err := s.conversations.SaveConversation(ctx, conv); err != nil {
		log.Error("failed to escalate conversation", zap.Error(err))
		return false
	}

	systemMsg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Role:           model.RoleSystem,
		Content:        fmt.Sprintf("Conversation escalated to human support: %s", reason),
		CreatedAt:      now,
	}
	if err := s.messages.CreateMessage(ctx, systemMsg); err != nil {
		// The status change is durable; the marker message is secondary.
		log.Warn("failed to append escalation message", zap.Error(err))
	} else {
		metrics.MessagesTotal.WithLabelValues(string(model.RoleSystem)).Inc()
	}

	metrics.EscalationsTotal.Inc()
	s.publishEvent(conversationID, model.EventTypeEscalation, reason, raterID)

	return true
}

// publishEvent emits a support event off the request path. Failures are
// logged and swallowed; durably recording the state change is the engine's
// only obligation.
func (s *ConversationService) publishEvent(conversationID string, eventType model.SupportEventType, reason, raterID string) {
	if s.events == nil {
		return
	}

	event := &model.SupportEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Type:           eventType,
		Reason:         reason,
		RaterID:        raterID,
		CreatedAt:      time.Now(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.events.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish support event",
				zap.String("conversation_id", conversationID),
				zap.String("type", string(eventType)),
				zap.Error(err),
			)
		}
	}()
}
