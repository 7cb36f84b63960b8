// Package synthesizer produces support replies from retrieved knowledge, an
// external language model, or a deterministic intent fallback. It never
// fails: every call returns usable reply text.
package synthesizer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/splitstack/support-assistant/internal/knowledge"
	"github.com/splitstack/support-assistant/internal/llm"
	"github.com/splitstack/support-assistant/internal/model"
	"github.com/splitstack/support-assistant/pkg/logger"
	"github.com/splitstack/support-assistant/pkg/metrics"
)

// DefaultHighConfidenceThreshold is the combined relevance score above
// which the top knowledge entry answers the question verbatim and model
// generation is skipped. Scores are on a 0-10 scale.
const DefaultHighConfidenceThreshold = 8.0

const (
	// historyWindow is the maximum number of prior turns sent to the model.
	historyWindow = 10

	// maxOutputTokens bounds the cost of a single model call.
	maxOutputTokens = 500

	// modelCallTimeout bounds a single model call; expiry is treated like
	// any other model failure and triggers the fallback.
	modelCallTimeout = 30 * time.Second
)

// Result is a synthesized reply.
type Result struct {
	Text          string
	Source        model.ResponseSource
	UsedKnowledge bool
}

// Synthesizer produces replies. The LLM client may be nil, in which case
// only the direct-answer and fallback paths are used.
type Synthesizer struct {
	llmClient llm.Client
	modelName string
	threshold float64
	logger    *logger.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithModel overrides the provider's default model.
func WithModel(name string) Option {
	return func(s *Synthesizer) { s.modelName = name }
}

// WithThreshold overrides the high-confidence direct-answer threshold.
func WithThreshold(t float64) Option {
	return func(s *Synthesizer) { s.threshold = t }
}

// New creates a synthesizer. client may be nil when no credential is
// configured.
func New(client llm.Client, log *logger.Logger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		llmClient: client,
		threshold: DefaultHighConfidenceThreshold,
		logger:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize produces a reply for userMessage. history carries the prior
// turns only; the new user message is appended here. Paths in order, first
// success wins: verbatim knowledge answer above the confidence threshold,
// external model generation, deterministic intent fallback. Model failures
// are absorbed here and trigger the fallback; nothing propagates.
func (s *Synthesizer) Synthesize(ctx context.Context, userMessage string, history []model.Message, sctx model.SituationalContext, entries []knowledge.ScoredEntry) Result {
	start := time.Now()

	if len(entries) > 0 && entries[0].Score > s.threshold {
		metrics.RecordSynthesis(string(model.SourceKnowledgeBase), time.Since(start).Seconds())
		return Result{
			Text:          entries[0].Entry.Answer,
			Source:        model.SourceKnowledgeBase,
			UsedKnowledge: true,
		}
	}

	if s.llmClient != nil {
		text, err := s.generate(ctx, userMessage, history, sctx, entries)
		if err == nil && text != "" {
			metrics.RecordSynthesis(string(model.SourceModel), time.Since(start).Seconds())
			return Result{
				Text:          text,
				Source:        model.SourceModel,
				UsedKnowledge: len(entries) > 0,
			}
		}
		metrics.ModelCallFailures.Inc()
		s.logger.Warn("model call failed, using fallback", zap.Error(err))
	}

	text, usedKnowledge := fallbackReply(userMessage, sctx, entries)
	metrics.RecordSynthesis(string(model.SourceFallback), time.Since(start).Seconds())
	return Result{
		Text:          text,
		Source:        model.SourceFallback,
		UsedKnowledge: usedKnowledge,
	}
}

func (s *Synthesizer) generate(ctx context.Context, userMessage string, history []model.Message, sctx model.SituationalContext, entries []knowledge.ScoredEntry) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, modelCallTimeout)
	defer cancel()

	turns := conversationTurns(history, userMessage)

	resp, err := s.llmClient.Complete(ctx, &llm.CompletionRequest{
		Model:     s.modelName,
		System:    buildSystemPrompt(sctx, entries, time.Now()),
		Messages:  turns,
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// conversationTurns maps the last historyWindow user/assistant messages
// plus the new user message into model turns. history must not already
// contain the new user message. System and error roles are engine
// bookkeeping and are not replayed to the model.
func conversationTurns(history []model.Message, userMessage string) []llm.ChatMessage {
	var turns []llm.ChatMessage
	for _, msg := range history {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		turns = append(turns, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	// Anthropic requires the first turn to be a user turn; the window can
	// open on the seeded greeting or mid-exchange.
	for len(turns) > 0 && turns[0].Role != string(model.RoleUser) {
		turns = turns[1:]
	}
	return append(turns, llm.ChatMessage{
		Role:    string(model.RoleUser),
		Content: userMessage,
	})
}
