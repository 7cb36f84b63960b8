// Package model defines data structures for the support assistant engine.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusClosed    ConversationStatus = "closed"
	StatusEscalated ConversationStatus = "escalated"
)

// Conversation represents a support chat thread. A conversation belongs to
// exactly one identity: an authenticated user id or an anonymous session id.
// The authenticated id wins when both are present. Conversations are never
// hard-deleted; closure and escalation are status changes.
type Conversation struct {
	ID        string             `json:"id" gorm:"primaryKey"`
	UserID    string             `json:"user_id,omitempty" gorm:"index:idx_conversations_user"`
	SessionID string             `json:"session_id,omitempty" gorm:"index:idx_conversations_session"`
	Status    ConversationStatus `json:"status" gorm:"index"`
	Metadata  Metadata           `json:"metadata,omitempty" gorm:"serializer:json"`
	CreatedAt time.Time          `json:"created_at" gorm:"index"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Metadata is a free-form bag attached to conversations and messages.
type Metadata map[string]any

// Metadata keys captured at creation and on escalation.
const (
	MetaUserAgent        = "user_agent"
	MetaPlatform         = "platform"
	MetaLocale           = "locale"
	MetaEscalationReason = "escalation_reason"
	MetaEscalatedAt      = "escalated_at"
)

// ClientMeta describes the client environment captured when a conversation
// is created.
type ClientMeta struct {
	UserAgent string `json:"user_agent,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

// ConversationSession is the caller-owned handle returned by
// initialize-or-resume: the conversation plus its message history. The
// services are stateless; all per-conversation state travels in this value.
type ConversationSession struct {
	Conversation *Conversation `json:"conversation"`
	Messages     []Message     `json:"messages"`
}

// StartSessionRequest is the request to resolve an identity and open or
// resume a conversation.
type StartSessionRequest struct {
	DeviceKey string     `json:"device_key,omitempty"`
	Client    ClientMeta `json:"client"`
}

// EscalateRequest is the request to hand a conversation off to human support.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// EscalateResponse reports whether the escalation was durably recorded.
type EscalateResponse struct {
	Escalated bool               `json:"escalated"`
	Status    ConversationStatus `json:"status,omitempty"`
}
