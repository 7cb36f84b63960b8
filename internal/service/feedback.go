package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/store"
	"github.com/splitstack/support-assistant/pkg/logger"
	"github.com/splitstack/support-assistant/pkg/metrics"
)

// ErrFeedbackFailed is the single error surfaced for any feedback write
// failure. Feedback is not business-critical; the caller shows a transient
// failure and moves on.
var ErrFeedbackFailed = errors.New("feedback failed")

// ErrInvalidFeedbackType is returned for unrecognized feedback types.
var ErrInvalidFeedbackType = errors.New("feedback type must be helpful or not_helpful")

// FeedbackService records per-message feedback and drives escalation
// through the conversation manager so both API surfaces share the same
// transition.
type FeedbackService struct {
	feedback      store.FeedbackStore
	messages      store.MessageStore
	conversations *ConversationService
	logger        *logger.Logger
}

// NewFeedbackService creates a feedback service.
func NewFeedbackService(
	feedback store.FeedbackStore,
	messages store.MessageStore,
	conversations *ConversationService,
	log *logger.Logger,
) *FeedbackService {
	return &FeedbackService{
		feedback:      feedback,
		messages:      messages,
		conversations: conversations,
		logger:        log,
	}
}

// SubmitFeedback attaches feedback to a message. The only validation is
// the feedback type; everything else is recorded as supplied. Store
// failures collapse into ErrFeedbackFailed.
func (s *FeedbackService) SubmitFeedback(ctx context.Context, messageID string, fbType model.FeedbackType, rating *int, comment, raterID string) (*model.Feedback, error) {
	if !fbType.Valid() {
		return nil, ErrInvalidFeedbackType
	}

	if _, err := s.messages.GetMessage(ctx, messageID); err != nil {
		s.logger.Warn("feedback target not found",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return nil, ErrFeedbackFailed
	}

	fb := &model.Feedback{
		ID:        uuid.Must(uuid.NewV7()).String(),
		MessageID: messageID,
		Type:      fbType,
		Rating:    rating,
		Comment:   comment,
		RaterID:   raterID,
		CreatedAt: time.Now(),
	}

	if err := s.feedback.CreateFeedback(ctx, fb); err != nil {
		s.logger.Warn("failed to persist feedback",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return nil, ErrFeedbackFailed
	}

	metrics.FeedbackTotal.WithLabelValues(string(fbType)).Inc()
	return fb, nil
}

// GetFeedback returns the latest feedback for a message, or ErrNotFound.
func (s *FeedbackService) GetFeedback(ctx context.Context, messageID string) (*model.Feedback, error) {
	return s.feedback.LatestFeedback(ctx, messageID)
}

// Escalate hands the conversation off to human support. Returns whether
// the escalation was durably recorded; it never raises, since escalation
// failure should not block the user's ability to keep chatting.
func (s *FeedbackService) Escalate(ctx context.Context, conversationID, reason, raterID string) bool {
	return s.conversations.Escalate(ctx, conversationID, reason, raterID)
}
