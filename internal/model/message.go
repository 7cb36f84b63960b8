package model

import (
	"time"
)

// Role is the sender role of a message. Error is a distinguished role, not
// an exception surfaced to the caller: a failed exchange still produces a
// visible message so the user always sees something.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleError:
		return true
	}
	return false
}

// ResponseSource identifies which synthesis path produced an assistant reply.
type ResponseSource string

const (
	SourceKnowledgeBase ResponseSource = "knowledge_base"
	SourceModel         ResponseSource = "model"
	SourceFallback      ResponseSource = "fallback"
)

// Message is a single turn in a conversation. Messages are immutable once
// created; only feedback may be attached afterwards.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"index:idx_messages_conversation"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Metadata       Metadata  `json:"metadata,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_messages_conversation"`
}

// Message metadata keys.
const (
	MetaKnowledgeUsed  = "knowledge_used"
	MetaResponseSource = "response_source"
	MetaCurrentPage    = "current_page"
)

// SituationalContext is the client-side context supplied with a user
// message and embedded in the synthesis prompt.
type SituationalContext struct {
	CurrentPage   string `json:"current_page,omitempty"`
	Authenticated bool   `json:"authenticated"`
	RecentError   string `json:"recent_error,omitempty"`
}

// PostMessageRequest is the request to post a user message.
type PostMessageRequest struct {
	Content string             `json:"content"`
	Context SituationalContext `json:"context"`
}

// PostMessageResponse returns the persisted reply. Reply.Role is
// RoleAssistant on success and RoleError when the exchange failed but a
// canned apology was recorded.
type PostMessageResponse struct {
	Reply *Message `json:"reply"`
}
