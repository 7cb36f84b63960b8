// Package knowledge retrieves and ranks curated knowledge base entries.
package knowledge

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/internal/store"
	"github.com/splitstack/support-assistant/pkg/logger"
	"github.com/splitstack/support-assistant/pkg/metrics"
)

// ScoredEntry is a knowledge entry with its combined relevance score on a
// 0-10 scale. Scores above the synthesizer's high-confidence threshold mean
// the entry answers the question verbatim.
type ScoredEntry struct {
	Entry model.KnowledgeEntry `json:"entry"`
	Score float64              `json:"score"`
}

// Weighting of the backing store's textual score against the
// operator-assigned entry weight.
const (
	textWeight     = 0.7
	operatorWeight = 0.3
)

// DefaultLimit caps how many candidates a search returns.
const DefaultLimit = 5

// Retriever ranks knowledge base candidates for a query.
type Retriever struct {
	store  store.KnowledgeStore
	logger *logger.Logger
}

// NewRetriever creates a retriever over the given knowledge store.
func NewRetriever(st store.KnowledgeStore, log *logger.Logger) *Retriever {
	return &Retriever{store: st, logger: log}
}

// Search returns candidates ordered descending by combined score, ties
// broken by higher usage count. Retrieval never fails: a backing store
// error or empty result yields an empty slice so the caller degrades to
// model generation or the deterministic fallback.
//
// Side effect: a non-empty result increments the top entry's usage counter
// asynchronously; increment failures are logged and swallowed.
func (r *Retriever) Search(ctx context.Context, query string) []ScoredEntry {
	hits, err := r.store.SearchKnowledge(ctx, query, DefaultLimit)
	if err != nil {
		r.logger.Warn("knowledge search failed", zap.Error(err))
		metrics.KnowledgeSearches.WithLabelValues("error").Inc()
		return nil
	}
	if len(hits) == 0 {
		metrics.KnowledgeSearches.WithLabelValues("empty").Inc()
		return nil
	}

	scored := make([]ScoredEntry, len(hits))
	for i, h := range hits {
		scored[i] = ScoredEntry{
			Entry: h.Entry,
			Score: textWeight*h.Score + operatorWeight*float64(h.Entry.Relevance),
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Entry.UsageCount > scored[j].Entry.UsageCount
	})

	metrics.KnowledgeSearches.WithLabelValues("hit").Inc()
	r.recordUsage(scored[0].Entry.ID)

	return scored
}

// recordUsage bumps the usage counter off the request path. The counter is
// an approximate popularity signal; lost updates are acceptable.
func (r *Retriever) recordUsage(entryID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.store.IncrementUsage(ctx, entryID); err != nil {
			r.logger.Warn("failed to increment knowledge usage",
				zap.String("entry_id", entryID),
				zap.Error(err),
			)
		}
	}()
}
