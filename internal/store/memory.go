package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/splitstack/support-assistant/internal/model"
)

// MemoryStore is an in-memory implementation of the persistence interfaces,
// used in tests and for local development without Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]model.Message // conversation id -> ordered messages
	messageByID   map[string]*model.Message
	feedback      map[string][]model.Feedback // message id -> rows in creation order
	knowledge     map[string]*model.KnowledgeEntry
}

var (
	_ ConversationStore = (*MemoryStore)(nil)
	_ MessageStore      = (*MemoryStore)(nil)
	_ FeedbackStore     = (*MemoryStore)(nil)
	_ KnowledgeStore    = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]model.Message),
		messageByID:   make(map[string]*model.Message),
		feedback:      make(map[string][]model.Feedback),
		knowledge:     make(map[string]*model.KnowledgeEntry),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *MemoryStore) FindActiveConversation(ctx context.Context, userID, sessionID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *model.Conversation
	for _, conv := range s.conversations {
		if conv.Status != model.StatusActive {
			continue
		}
		if userID != "" && conv.UserID != userID {
			continue
		}
		if userID == "" && conv.SessionID != sessionID {
			continue
		}
		if newest == nil || conv.CreatedAt.After(newest.CreatedAt) {
			newest = conv
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	cp := *newest
	return &cp, nil
}

func (s *MemoryStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conv.ID]; !ok {
		return ErrNotFound
	}
	conv.UpdatedAt = time.Now()
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], cp)
	s.messageByID[msg.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messageByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) CreateFeedback(ctx context.Context, fb *model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback[fb.MessageID] = append(s.feedback[fb.MessageID], *fb)
	return nil
}

func (s *MemoryStore) LatestFeedback(ctx context.Context, messageID string) (*model.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.feedback[messageID]
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	cp := rows[len(rows)-1]
	return &cp, nil
}

// SeedKnowledge inserts or replaces knowledge entries (tests, local dev).
func (s *MemoryStore) SeedKnowledge(entries ...model.KnowledgeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		cp := e
		s.knowledge[e.ID] = &cp
	}
}

func (s *MemoryStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []SearchHit
	for _, e := range s.knowledge {
		score := textScore(query, e)
		if score <= 0 {
			continue
		}
		hits = append(hits, SearchHit{Entry: *e, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Entry.ID < hits[j].Entry.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.knowledge[entryID]
	if !ok {
		return ErrNotFound
	}
	e.UsageCount++
	return nil
}

// UsageCount reports the current usage counter for an entry (tests).
func (s *MemoryStore) UsageCount(entryID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.knowledge[entryID]; ok {
		return e.UsageCount
	}
	return 0
}

// textScore approximates the Postgres trigram scoring on a 0-10 scale:
// exact or containing question matches score highest, then keyword hits,
// then word overlap between query and question.
func textScore(query string, e *model.KnowledgeEntry) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	question := strings.ToLower(e.Question)
	if q == "" {
		return 0
	}

	if q == question {
		return 10
	}
	if strings.Contains(question, q) || strings.Contains(q, question) {
		return 9
	}

	score := 0.0
	for _, kw := range e.Keywords {
		if kw != "" && strings.Contains(q, strings.ToLower(kw)) {
			score = 6
			break
		}
	}

	words := strings.Fields(q)
	if len(words) > 0 {
		matched := 0
		for _, w := range words {
			if len(w) > 2 && strings.Contains(question, w) {
				matched++
			}
		}
		if overlap := 8 * float64(matched) / float64(len(words)); overlap > score {
			score = overlap
		}
	}
	return score
}
