package driven

import (
	"context"
	"time"
)

// GenerationBackend provides streaming text generation from a language model.
//
// Implementations may include:
//   - Ollama (local models)
//   - LM Studio or any OpenAI-compatible local inference server
type GenerationBackend interface {
	// Complete starts a streaming generation over the given messages.
	// Token fragments arrive on the returned stream in emission order.
	// Cancelling ctx stops the generation cooperatively.
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (CompletionStream, error)

	// ModelName returns the name of the model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// CompletionOptions configures a generation request.
type CompletionOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// Stop are turn-boundary or end-of-text sequences that terminate
	// generation early when emitted.
	Stop []string
}

// CompletionResult summarises a finished generation.
type CompletionResult struct {
	// TokenCount is the number of tokens generated.
	TokenCount int

	// Duration is the generation wall time.
	Duration time.Duration

	// TokensPerSecond is the measured generation throughput.
	TokensPerSecond float64
}

// CompletionStream delivers token fragments for one in-flight generation.
// The consumer reads Tokens until the channel closes, then calls Result.
type CompletionStream interface {
	// Tokens returns the channel of incoming token fragments.
	// The channel is closed when generation completes, fails, or is cancelled.
	Tokens() <-chan string

	// Result blocks until the stream has finished and returns the final
	// throughput measurement, or the error that terminated the stream.
	Result() (CompletionResult, error)

	// Cancel requests the backend stop generating. Best-effort: fragments
	// already in flight may still arrive before the channel closes.
	Cancel() error
}
