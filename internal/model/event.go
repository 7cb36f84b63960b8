package model

import (
	"time"
)

// SupportEventType classifies events published for external consumers. The
// notification subsystem reacts to escalations; synthesis errors feed
// operational dashboards.
type SupportEventType string

const (
	EventTypeEscalation     SupportEventType = "escalation"
	EventTypeSynthesisError SupportEventType = "synthesis_error"
)

// SupportEvent is published to JetStream when a conversation changes state
// in a way outside systems care about. The engine's only obligation is the
// durable state change; delivery of notifications is the consumer's problem.
type SupportEvent struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	Type           SupportEventType `json:"type"`
	Reason         string           `json:"reason,omitempty"`
	RaterID        string           `json:"rater_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}
