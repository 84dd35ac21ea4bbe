package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driving"
	"github.com/quorum-labs/parley-cli/internal/logger"
)

// Ensure ChatService implements the interfaces.
var (
	_ driving.ChatService     = (*ChatService)(nil)
	_ driven.PromptStoreAware = (*ChatService)(nil)
)

// stopMarker is appended to the in-progress answer when the user cancels.
const stopMarker = " [generation stopped by user]"

// Default chat configuration values.
const (
	DefaultTopK             = 5
	DefaultThreshold        = 0.4
	DefaultMaxContextLength = 2000
	DefaultMaxTokens        = 512
	DefaultTemperature      = 0.7
)

// defaultStopSequences are turn-boundary markers the backend honours to
// terminate generation early.
var defaultStopSequences = []string{"</s>", "<|im_end|>", "<|eot_id|>"}

// defaultSystemPrompt is the fallback system prompt when no PromptStore is configured.
const defaultSystemPrompt = `You are Parley, a helpful assistant running entirely on the user's device.
Answer using the provided context when it is relevant. If the context does not
contain the answer, say so instead of guessing. Be concise.`

// defaultAugmentPrompt is the fallback augmentation template when no PromptStore is configured.
const defaultAugmentPrompt = `Use the following context to answer the question.

Context:
%s

Question: %s`

// ChatConfig holds tunables for the chat pipeline.
type ChatConfig struct {
	// TopK is the maximum number of documents to retrieve per turn.
	TopK int

	// Threshold is the minimum cosine similarity for retrieved documents.
	Threshold float64

	// Collection filters retrieval to a single collection when non-empty.
	Collection string

	// MaxContextLength bounds the retrieved context window, in characters.
	MaxContextLength int

	// MaxTokens is the maximum number of tokens to generate per turn.
	MaxTokens int

	// Temperature controls generation randomness.
	Temperature float64

	// Timeout optionally bounds a generation call. Zero disables it; a
	// user-initiated cancel is then the only termination path.
	Timeout time.Duration
}

// withDefaults fills zero-valued fields.
func (c ChatConfig) withDefaults() ChatConfig {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MaxContextLength <= 0 {
		c.MaxContextLength = DefaultMaxContextLength
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	return c
}

// ChatService orchestrates retrieval-augmented streaming conversations.
// It owns the transcript and enforces at most one generation in flight.
type ChatService struct {
	sessionID string
	retrieval driving.RetrievalService
	backend   driven.GenerationBackend
	prompts   driven.PromptStore
	cfg       ChatConfig

	mu            sync.Mutex
	transcript    []domain.ConversationTurn
	generating    bool
	draining      bool
	cancelled     bool
	active        driven.CompletionStream
	activeCancel  context.CancelFunc
	tokensPerTurn []float64
}

// NewChatService creates a chat service over the given retrieval service and
// generation backend.
func NewChatService(
	retrieval driving.RetrievalService,
	backend driven.GenerationBackend,
	cfg ChatConfig,
) *ChatService {
	return &ChatService{
		sessionID: uuid.NewString(),
		retrieval: retrieval,
		backend:   backend,
		cfg:       cfg.withDefaults(),
	}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
// If not set, the service uses hardcoded default prompts.
func (s *ChatService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// ReloadPrompts clears cached prompt templates so edits on disk take effect
// on the next turn. No-op when no prompt store is configured.
func (s *ChatService) ReloadPrompts() {
	if s.prompts == nil {
		return
	}
	s.prompts.Reload()
	logger.Debug("Prompt cache cleared")
}

// SessionID returns the identifier for this conversation session.
func (s *ChatService) SessionID() string {
	return s.sessionID
}

// SubmitUserMessage runs the full pipeline for one user turn:
// retrieve context, augment the prompt, stream the completion into the
// transcript. It blocks until the turn resolves; observe progress through
// Transcript and cancel through Cancel from other goroutines.
func (s *ChatService) SubmitUserMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyInput
	}

	s.mu.Lock()
	// draining covers the window after a cancel while the old stream has not
	// closed yet; accepting a turn then would let its late fragments bleed
	// into the new placeholder.
	if s.generating || s.draining {
		s.mu.Unlock()
		return domain.ErrGenerationInFlight
	}
	if s.backend == nil || s.retrieval == nil || !s.retrieval.Ready() {
		s.mu.Unlock()
		return domain.ErrBackendNotReady
	}

	// Append the user turn and the placeholder the stream will fill.
	s.transcript = append(s.transcript,
		domain.ConversationTurn{Role: domain.RoleUser, Content: text},
		domain.ConversationTurn{Role: domain.RoleAssistant, Content: ""},
	)
	s.generating = true
	s.cancelled = false

	var genCtx context.Context
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
	} else {
		genCtx, cancel = context.WithCancel(ctx)
	}
	s.activeCancel = cancel
	s.mu.Unlock()

	defer cancel()

	logger.Section("Generation")
	logger.Debug("Session %s: user message %q", s.sessionID, text)

	return s.runPipeline(genCtx, text)
}

// runPipeline retrieves context and streams the completion.
func (s *ChatService) runPipeline(ctx context.Context, text string) error {
	opts := domain.SearchOptions{
		TopK:       s.cfg.TopK,
		Threshold:  s.cfg.Threshold,
		Collection: s.cfg.Collection,
	}

	outcome, err := s.retrieval.Retrieve(ctx, text, opts, s.cfg.MaxContextLength)
	if err != nil {
		// Retrieval failed before any backend call: roll back the
		// placeholder so no empty turn is left visible.
		if s.abortTurn() {
			logger.Debug("Retrieval aborted by cancel")
			return nil
		}
		return fmt.Errorf("retrieve context: %w", err)
	}

	messages := s.buildMessages(text, outcome)

	stream, err := s.backend.Complete(ctx, messages, driven.CompletionOptions{
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
		Stop:        defaultStopSequences,
	})
	if err != nil {
		if s.abortTurn() {
			logger.Debug("Generation aborted by cancel before the stream started")
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrInference, err)
	}

	s.mu.Lock()
	s.active = stream
	cancelledEarly := s.cancelled
	s.mu.Unlock()

	if cancelledEarly {
		// Cancel ran before the stream was registered and could not reach
		// it; stop the backend now so the drain below terminates.
		if cerr := stream.Cancel(); cerr != nil {
			logger.Warn("Backend cancel failed: %v", cerr)
		}
	}

	tokenCount := 0
	for tok := range stream.Tokens() {
		s.appendToken(tok)
		tokenCount++
	}

	result, streamErr := stream.Result()
	return s.finishTurn(tokenCount, result, streamErr)
}

// buildMessages assembles the backend payload: the system prompt, the prior
// transcript, and the augmented form of the current user turn. The stored
// transcript keeps the original un-augmented text.
func (s *ChatService) buildMessages(text string, outcome *domain.RetrievalOutcome) []driven.ChatMessage {
	system := s.loadPrompt(driven.PromptChatSystem, defaultSystemPrompt)
	messages := []driven.ChatMessage{
		{Role: string(domain.RoleSystem), Content: system},
	}

	s.mu.Lock()
	// Skip the just-appended user turn and assistant placeholder.
	prior := s.transcript[:len(s.transcript)-2]
	for _, turn := range prior {
		messages = append(messages, driven.ChatMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	s.mu.Unlock()

	content := text
	if outcome.Context != "" {
		template := s.loadPrompt(driven.PromptAugment, defaultAugmentPrompt)
		content = fmt.Sprintf(template, outcome.Context, text)
		logger.Debug("Augmented prompt with %d documents (%d chars)",
			len(outcome.DocumentsUsed), outcome.ContextLength)
	} else {
		logger.Debug("No relevant documents found, sending question unaugmented")
	}

	return append(messages, driven.ChatMessage{
		Role:    string(domain.RoleUser),
		Content: content,
	})
}

// appendToken merges one fragment into the in-progress assistant turn.
// The fragment is dropped if the last turn is not an assistant turn, so a
// violated invariant can never mis-append text elsewhere.
func (s *ChatService) appendToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.transcript)
	if n == 0 || s.transcript[n-1].Role != domain.RoleAssistant {
		logger.Warn("Dropping token fragment: last transcript entry is not an assistant turn")
		return
	}
	s.transcript[n-1].Content += tok
}

// finishTurn settles session state after the stream closes.
func (s *ChatService) finishTurn(tokenCount int, result driven.CompletionResult, streamErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = nil
	s.activeCancel = nil
	s.draining = false

	if s.cancelled {
		// Cancel already transitioned state and appended the stop marker.
		// If the cancel landed before anything streamed there is no marker
		// either; drop the empty placeholder.
		s.rollbackPlaceholderLocked()
		logger.Debug("Generation cancelled after %d tokens", tokenCount)
		return nil
	}

	s.generating = false

	if streamErr != nil {
		if tokenCount == 0 {
			// Nothing streamed: remove the placeholder entirely rather
			// than leaving an empty turn that looks completed.
			s.rollbackPlaceholderLocked()
		}
		// Partial output already streamed is preserved as-is.
		return fmt.Errorf("%w: %v", domain.ErrInference, streamErr)
	}

	s.tokensPerTurn = append(s.tokensPerTurn, result.TokensPerSecond)
	logger.Info("Generation complete: %d tokens, %.1f tok/s",
		result.TokenCount, result.TokensPerSecond)
	return nil
}

// abortTurn rolls back the placeholder and settles session state after a
// failure before any token arrived. Reports whether the turn had been
// cancelled, in which case the failure is the cancellation itself and not
// an error worth surfacing.
func (s *ChatService) abortTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbackPlaceholderLocked()
	s.generating = false
	s.draining = false
	s.active = nil
	s.activeCancel = nil
	return s.cancelled
}

// rollbackPlaceholderLocked removes the trailing empty assistant turn.
// Callers must hold s.mu.
func (s *ChatService) rollbackPlaceholderLocked() {
	n := len(s.transcript)
	if n > 0 && s.transcript[n-1].Role == domain.RoleAssistant && s.transcript[n-1].Content == "" {
		s.transcript = s.transcript[:n-1]
	}
}

// Cancel requests the in-flight generation stop. Backend cancellation errors
// are logged, never raised; local state always leaves the generating state so
// the caller is never stuck. Fragments that arrive before the backend
// acknowledges are still applied to the cancelled turn; new submissions are
// rejected until that turn's stream settles.
func (s *ChatService) Cancel() {
	s.mu.Lock()
	if !s.generating {
		s.mu.Unlock()
		logger.Debug("Cancel ignored: no generation in flight")
		return
	}
	s.cancelled = true
	s.generating = false
	s.draining = true
	stream := s.active
	cancel := s.activeCancel
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Cancel(); err != nil {
			logger.Warn("Backend cancel failed: %v", err)
		}
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The stop marker belongs to streamed output. A cancel that lands before
	// the stream starts leaves the placeholder empty and the pipeline rolls
	// it back instead.
	n := len(s.transcript)
	if stream != nil && n > 0 && s.transcript[n-1].Role == domain.RoleAssistant {
		s.transcript[n-1].Content += stopMarker
	}
	logger.Info("Generation stopped by user")
}

// Transcript returns a snapshot of the conversation turns.
func (s *ChatService) Transcript() []domain.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConversationTurn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// IsGenerating reports whether a generation is currently in flight.
func (s *ChatService) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// TokensPerTurn returns the throughput of each completed turn.
func (s *ChatService) TokensPerTurn() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.tokensPerTurn))
	copy(out, s.tokensPerTurn)
	return out
}

// loadPrompt loads a prompt from the store, falling back to the default if unavailable.
func (s *ChatService) loadPrompt(name, fallback string) string {
	if s.prompts == nil {
		return fallback
	}
	prompt, err := s.prompts.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}
