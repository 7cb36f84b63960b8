// Package store defines persistence interfaces for the support assistant
// engine and provides Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"

	"github.com/splitstack/support-assistant/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ConversationStore persists conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	// FindActiveConversation returns the most recently created active
	// conversation for the identity, or ErrNotFound. Exactly one of
	// userID/sessionID is set.
	FindActiveConversation(ctx context.Context, userID, sessionID string) (*model.Conversation, error)

	// SaveConversation writes the full conversation row (status and
	// metadata changes).
	SaveConversation(ctx context.Context, conv *model.Conversation) error
}

// MessageStore persists messages. Messages are append-only.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)

	// ListMessages returns all messages for a conversation in creation
	// order.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
}

// FeedbackStore persists feedback records.
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, fb *model.Feedback) error

	// LatestFeedback returns the most recent feedback row for a message,
	// or ErrNotFound. The store does not dedupe; the latest row wins.
	LatestFeedback(ctx context.Context, messageID string) (*model.Feedback, error)
}

// SearchHit is a knowledge entry with the backing store's textual relevance
// score on a 0-10 scale.
type SearchHit struct {
	Entry model.KnowledgeEntry
	Score float64
}

// KnowledgeStore provides read access to curated knowledge entries plus the
// usage-counter side effect. Entry curation lives on an external surface.
type KnowledgeStore interface {
	SearchKnowledge(ctx context.Context, query string, limit int) ([]SearchHit, error)
	IncrementUsage(ctx context.Context, entryID string) error
}
