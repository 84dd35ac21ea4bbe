package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
)

// fakeEmbedding is a scripted driven.EmbeddingBackend.
type fakeEmbedding struct {
	mu        sync.Mutex
	vec       []float32
	embedErr  error
	dims      int
	pingErr   error
	pingBlock chan struct{}
	pingCalls int
}

func (f *fakeEmbedding) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	// Copy: the caller normalises in place.
	return append([]float32(nil), f.vec...), nil
}

func (f *fakeEmbedding) Dimensions() int { return f.dims }

func (f *fakeEmbedding) ModelName() string { return "fake-embed" }

func (f *fakeEmbedding) Ping(ctx context.Context) error {
	f.mu.Lock()
	f.pingCalls++
	block := f.pingBlock
	err := f.pingErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeEmbedding) Close() error { return nil }

func (f *fakeEmbedding) pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingCalls
}

func (f *fakeEmbedding) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// fakeDocs is a scripted driven.DocumentReader.
type fakeDocs struct {
	records []domain.DocumentRecord
	listErr error
	count   int
}

func (f *fakeDocs) ListRecords(_ context.Context, collection string) ([]domain.DocumentRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if collection == "" {
		return f.records, nil
	}
	var out []domain.DocumentRecord
	for _, rec := range f.records {
		if rec.Collection == collection {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeDocs) Count(_ context.Context, _ string) (int, error) {
	if f.listErr != nil {
		return 0, f.listErr
	}
	if f.count > 0 {
		return f.count, nil
	}
	return len(f.records), nil
}

// fakeRetrieval is a scripted driving.RetrievalService.
type fakeRetrieval struct {
	mu        sync.Mutex
	ready     bool
	outcome   *domain.RetrievalOutcome
	err       error
	block     chan struct{}
	lastQuery string
	lastOpts  domain.SearchOptions
}

func (f *fakeRetrieval) Initialize(_ context.Context) error { return nil }

func (f *fakeRetrieval) Ready() bool { return f.ready }

func (f *fakeRetrieval) Retrieve(
	ctx context.Context, query string, opts domain.SearchOptions, _ int,
) (*domain.RetrievalOutcome, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = query
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &domain.RetrievalOutcome{}, nil
}

// fakeStream is a scripted driven.CompletionStream. Tests feed tokens into
// the channel; Cancel closes it so the reader drains and stops, unless
// holdOpen is set to model a backend that keeps emitting after the request.
type fakeStream struct {
	tokens    chan string
	closeOnce sync.Once
	holdOpen  bool

	mu        sync.Mutex
	result    driven.CompletionResult
	err       error
	cancelErr error
	cancelled bool
}

func newFakeStream(tokens ...string) *fakeStream {
	s := &fakeStream{tokens: make(chan string, len(tokens)+1)}
	for _, tok := range tokens {
		s.tokens <- tok
	}
	return s
}

func (f *fakeStream) Tokens() <-chan string { return f.tokens }

func (f *fakeStream) Result() (driven.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeStream) Cancel() error {
	f.mu.Lock()
	f.cancelled = true
	err := f.cancelErr
	f.mu.Unlock()
	if !f.holdOpen {
		f.close()
	}
	return err
}

func (f *fakeStream) close() {
	f.closeOnce.Do(func() { close(f.tokens) })
}

func (f *fakeStream) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// fakeGeneration is a scripted driven.GenerationBackend that hands out a
// pre-built stream and signals when Complete is called.
type fakeGeneration struct {
	mu          sync.Mutex
	stream      *fakeStream
	completeErr error
	messages    []driven.ChatMessage
	started     chan struct{}
}

func newFakeGeneration(stream *fakeStream) *fakeGeneration {
	return &fakeGeneration{stream: stream, started: make(chan struct{}, 1)}
}

func (f *fakeGeneration) Complete(
	_ context.Context, messages []driven.ChatMessage, _ driven.CompletionOptions,
) (driven.CompletionStream, error) {
	f.mu.Lock()
	f.messages = messages
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.stream, nil
}

func (f *fakeGeneration) ModelName() string { return "fake-llm" }

func (f *fakeGeneration) Ping(_ context.Context) error { return nil }

func (f *fakeGeneration) Close() error { return nil }

func (f *fakeGeneration) sentMessages() []driven.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driven.ChatMessage(nil), f.messages...)
}

// fakePrompts is a scripted driven.PromptStore that counts reloads.
type fakePrompts struct {
	mu      sync.Mutex
	prompts map[string]string
	reloads int
}

func (f *fakePrompts) Load(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prompt, ok := f.prompts[name]; ok {
		return prompt, nil
	}
	return "", fmt.Errorf("prompt %q not found", name)
}

func (f *fakePrompts) Reload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
}
