package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/splitstack/support-assistant/internal/model"
)

// PostgresStore implements the persistence interfaces on top of GORM.
type PostgresStore struct {
	db *gorm.DB
}

var (
	_ ConversationStore = (*PostgresStore)(nil)
	_ MessageStore      = (*PostgresStore)(nil)
	_ FeedbackStore     = (*PostgresStore)(nil)
	_ KnowledgeStore    = (*PostgresStore)(nil)
)

// OpenPostgres connects to Postgres and runs migrations for the engine's
// tables. Knowledge entries are curated elsewhere; the table is migrated
// here so local environments work out of the box.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable pg_trgm extension: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Conversation{},
		&model.Message{},
		&model.Feedback{},
		&model.KnowledgeEntry{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing GORM handle (tests, shared pools).
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	return s.db.WithContext(ctx).Create(conv).Error
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *PostgresStore) FindActiveConversation(ctx context.Context, userID, sessionID string) (*model.Conversation, error) {
	q := s.db.WithContext(ctx).Where("status = ?", model.StatusActive)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	} else {
		q = q.Where("session_id = ?", sessionID)
	}

	var conv model.Conversation
	err := q.Order("created_at DESC").First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *PostgresStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	conv.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).Save(conv).Error
}

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *model.Message) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *PostgresStore) CreateFeedback(ctx context.Context, fb *model.Feedback) error {
	return s.db.WithContext(ctx).Create(fb).Error
}

func (s *PostgresStore) LatestFeedback(ctx context.Context, messageID string) (*model.Feedback, error) {
	var fb model.Feedback
	err := s.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at DESC").
		First(&fb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fb, nil
}

// SearchKnowledge scores entries with trigram similarity over the question
// text plus keyword containment, scaled to 0-10. Entries with no textual
// overlap are excluded; the retriever layers the operator weight on top.
func (s *PostgresStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}

	type row struct {
		model.KnowledgeEntry
		Score float64
	}

	var rows []row
	err := s.db.WithContext(ctx).
		Raw(`
			SELECT *, GREATEST(
				similarity(lower(question), lower(?)) * 10,
				CASE WHEN keywords::text ILIKE '%' || ? || '%' THEN 6.0 ELSE 0 END
			) AS score
			FROM knowledge_entries
			WHERE similarity(lower(question), lower(?)) > 0.1
			   OR keywords::text ILIKE '%' || ? || '%'
			ORDER BY score DESC
			LIMIT ?`,
			query, query, query, query, limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, len(rows))
	for i, r := range rows {
		hits[i] = SearchHit{Entry: r.KnowledgeEntry, Score: r.Score}
	}
	return hits, nil
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, entryID string) error {
	return s.db.WithContext(ctx).
		Model(&model.KnowledgeEntry{}).
		Where("id = ?", entryID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1")).Error
}
