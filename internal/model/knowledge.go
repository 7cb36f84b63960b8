package model

import (
	"time"
)

// KnowledgeCategory groups knowledge base entries by product area. The set
// is closed at the product level but stored as a string so curation can
// extend it without a migration.
type KnowledgeCategory string

const (
	CategoryWallet    KnowledgeCategory = "wallet"
	CategoryGroups    KnowledgeCategory = "groups"
	CategoryRewards   KnowledgeCategory = "rewards"
	CategoryReferral  KnowledgeCategory = "referral"
	CategoryAccount   KnowledgeCategory = "account"
	CategoryTechnical KnowledgeCategory = "technical"
	CategoryGeneral   KnowledgeCategory = "general"
)

// KnowledgeEntry is a curated question/answer record. The engine reads
// entries and increments UsageCount when an entry is surfaced as the top
// match; creation and editing happen on an external curation surface.
type KnowledgeEntry struct {
	ID         string            `json:"id" gorm:"primaryKey"`
	Question   string            `json:"question"`
	Answer     string            `json:"answer"`
	Category   KnowledgeCategory `json:"category" gorm:"index"`
	Keywords   StringSlice       `json:"keywords" gorm:"serializer:json"`
	Relevance  int               `json:"relevance"` // operator-assigned weight, 1-10
	UsageCount int64             `json:"usage_count"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// StringSlice is a JSON-serialized list of strings.
type StringSlice []string
