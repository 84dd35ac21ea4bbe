package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
)

// chunkSeparator joins document contents inside the context window.
const chunkSeparator = "\n\n"

// ContextAssembler packs ranked search results into a single bounded-length
// context block. Deterministic and side-effect-free.
type ContextAssembler struct{}

// NewContextAssembler creates a context assembler.
func NewContextAssembler() *ContextAssembler {
	return &ContextAssembler{}
}

// Assemble walks results in rank order and appends whole chunks until the
// next one would exceed maxContextLength, counted in characters rather than
// bytes. Partial chunks are never included.
func (a *ContextAssembler) Assemble(
	results []domain.SearchResult, maxContextLength int,
) (*domain.RetrievalOutcome, error) {
	if maxContextLength <= 0 {
		return nil, fmt.Errorf("%w: maxContextLength must be positive, got %d",
			domain.ErrInvalidInput, maxContextLength)
	}

	var b strings.Builder
	var used []domain.DocumentRef
	length := 0

	for i := range results {
		chunk := results[i].Record.Content
		need := utf8.RuneCountInString(chunk)
		if length > 0 {
			need += len(chunkSeparator)
		}
		if length+need > maxContextLength {
			break
		}

		if length > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(chunk)
		length += need
		used = append(used, domain.DocumentRef{
			ID:         results[i].Record.ID,
			Similarity: results[i].Similarity,
			Collection: results[i].Record.Collection,
		})
	}

	return &domain.RetrievalOutcome{
		Context:             b.String(),
		ContextLength:       length,
		DocumentsUsed:       used,
		TotalDocumentsFound: len(results),
	}, nil
}
