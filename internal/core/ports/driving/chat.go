package driving

import (
	"context"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
)

// ChatService orchestrates retrieval-augmented, streaming conversations.
// At most one generation is in flight per service instance.
type ChatService interface {
	// SubmitUserMessage appends a user turn plus a placeholder assistant
	// turn, retrieves context, and streams the completion into the
	// placeholder. It blocks until the generation resolves, fails, or is
	// cancelled; intermediate state is observable through Transcript and
	// IsGenerating from other goroutines.
	//
	// Fails with domain.ErrEmptyInput for blank text,
	// domain.ErrBackendNotReady when the backend or retrieval service is
	// unavailable, and domain.ErrGenerationInFlight when a generation is
	// already running.
	SubmitUserMessage(ctx context.Context, text string) error

	// Cancel requests the in-flight generation stop. Best-effort: backend
	// cancellation errors are logged, never raised, and local state always
	// transitions to not-generating. No-op when nothing is in flight.
	Cancel()

	// Transcript returns a snapshot of the conversation turns.
	Transcript() []domain.ConversationTurn

	// IsGenerating reports whether a generation is currently in flight.
	IsGenerating() bool

	// TokensPerTurn returns the measured throughput of each completed turn,
	// in tokens per second.
	TokensPerTurn() []float64

	// ReloadPrompts clears any cached prompt templates so edits on disk
	// take effect on the next turn.
	ReloadPrompts()
}
