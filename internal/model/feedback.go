package model

import (
	"time"
)

// FeedbackType is the caller's judgment of a message.
type FeedbackType string

const (
	FeedbackHelpful    FeedbackType = "helpful"
	FeedbackNotHelpful FeedbackType = "not_helpful"
)

// Valid reports whether t is a recognized feedback type.
func (t FeedbackType) Valid() bool {
	return t == FeedbackHelpful || t == FeedbackNotHelpful
}

// Feedback is an optional record attached to a message after creation. The
// store does not dedupe; the latest row per message is authoritative.
type Feedback struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	MessageID string       `json:"message_id" gorm:"index"`
	Type      FeedbackType `json:"type"`
	Rating    *int         `json:"rating,omitempty"`
	Comment   string       `json:"comment,omitempty"`
	RaterID   string       `json:"rater_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// SubmitFeedbackRequest is the request to attach feedback to a message.
type SubmitFeedbackRequest struct {
	Type    FeedbackType `json:"type"`
	Rating  *int         `json:"rating,omitempty"`
	Comment string       `json:"comment,omitempty"`
}
