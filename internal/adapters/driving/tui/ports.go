package tui

import (
	"context"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
)

// ChatPort is the TUI-facing subset of the chat service.
type ChatPort interface {
	SubmitUserMessage(ctx context.Context, text string) error
	Cancel()
	Transcript() []domain.ConversationTurn
	IsGenerating() bool
	TokensPerTurn() []float64
	ReloadPrompts()
}
