package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorum-labs/parley-cli/internal/core/domain"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
)

func newTestChat(retrieval *fakeRetrieval, backend driven.GenerationBackend) *ChatService {
	return NewChatService(retrieval, backend, ChatConfig{})
}

func readyRetrieval(contextText string) *fakeRetrieval {
	return &fakeRetrieval{
		ready: true,
		outcome: &domain.RetrievalOutcome{
			Context:       contextText,
			ContextLength: len(contextText),
		},
	}
}

func TestChatService_EmptyInput(t *testing.T) {
	svc := newTestChat(readyRetrieval(""), newFakeGeneration(newFakeStream()))

	err := svc.SubmitUserMessage(context.Background(), "   \n\t ")
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
	assert.Empty(t, svc.Transcript())
}

func TestChatService_BackendNotReady(t *testing.T) {
	notReady := &fakeRetrieval{ready: false}
	svc := newTestChat(notReady, newFakeGeneration(newFakeStream()))

	err := svc.SubmitUserMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrBackendNotReady)

	svc = newTestChat(readyRetrieval(""), nil)
	err = svc.SubmitUserMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrBackendNotReady)
}

func TestChatService_StreamsTokensIntoTranscript(t *testing.T) {
	stream := newFakeStream("Hel", "lo")
	stream.result = driven.CompletionResult{TokenCount: 2, TokensPerSecond: 42.5}
	stream.close()
	backend := newFakeGeneration(stream)

	retrieval := readyRetrieval("alpha beta")
	svc := newTestChat(retrieval, backend)
	require.NoError(t, svc.SubmitUserMessage(context.Background(), "what is alpha?"))

	assert.Equal(t, "what is alpha?", retrieval.lastQuery)
	assert.Equal(t, DefaultTopK, retrieval.lastOpts.TopK)
	assert.InDelta(t, DefaultThreshold, retrieval.lastOpts.Threshold, 1e-9)

	transcript := svc.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, domain.RoleUser, transcript[0].Role)
	assert.Equal(t, "what is alpha?", transcript[0].Content)
	assert.Equal(t, domain.RoleAssistant, transcript[1].Role)
	assert.Equal(t, "Hello", transcript[1].Content)

	assert.False(t, svc.IsGenerating())
	require.Len(t, svc.TokensPerTurn(), 1)
	assert.InDelta(t, 42.5, svc.TokensPerTurn()[0], 1e-9)

	// The backend saw the system prompt and the augmented question; the
	// stored transcript keeps the original text.
	messages := backend.sentMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, string(domain.RoleSystem), messages[0].Role)
	assert.Equal(t, string(domain.RoleUser), messages[1].Role)
	assert.Contains(t, messages[1].Content, "alpha beta")
	assert.Contains(t, messages[1].Content, "what is alpha?")
}

func TestChatService_UnaugmentedWhenNoContext(t *testing.T) {
	stream := newFakeStream("ok")
	stream.close()
	backend := newFakeGeneration(stream)

	svc := newTestChat(readyRetrieval(""), backend)
	require.NoError(t, svc.SubmitUserMessage(context.Background(), "hello there"))

	messages := backend.sentMessages()
	require.Len(t, messages, 2)
	assert.Equal(t, "hello there", messages[1].Content)
}

func TestChatService_PriorTurnsIncluded(t *testing.T) {
	stream := newFakeStream("first answer")
	stream.close()
	backend := newFakeGeneration(stream)
	svc := newTestChat(readyRetrieval(""), backend)

	require.NoError(t, svc.SubmitUserMessage(context.Background(), "first question"))

	stream2 := newFakeStream("second answer")
	stream2.close()
	backend.mu.Lock()
	backend.stream = stream2
	backend.mu.Unlock()

	require.NoError(t, svc.SubmitUserMessage(context.Background(), "second question"))

	messages := backend.sentMessages()
	require.Len(t, messages, 4)
	assert.Equal(t, "first question", messages[1].Content)
	assert.Equal(t, "first answer", messages[2].Content)
	assert.Equal(t, "second question", messages[3].Content)
}

func TestChatService_RejectsConcurrentGeneration(t *testing.T) {
	stream := newFakeStream("Hel")
	backend := newFakeGeneration(stream)
	svc := newTestChat(readyRetrieval(""), backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.SubmitUserMessage(context.Background(), "first")
	}()

	<-backend.started
	require.Eventually(t, svc.IsGenerating, time.Second, time.Millisecond)

	before := svc.Transcript()
	err := svc.SubmitUserMessage(context.Background(), "second")
	assert.ErrorIs(t, err, domain.ErrGenerationInFlight)
	assert.Equal(t, before, svc.Transcript(), "rejected submit must not touch the transcript")

	stream.close()
	require.NoError(t, <-errCh)
	assert.False(t, svc.IsGenerating())
}

func TestChatService_RetrievalFailureRollsBack(t *testing.T) {
	retrieval := &fakeRetrieval{ready: true, err: errors.New("store offline")}
	svc := newTestChat(retrieval, newFakeGeneration(newFakeStream()))

	err := svc.SubmitUserMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")

	// The user turn stays; only the empty assistant placeholder is rolled back.
	transcript := svc.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, domain.RoleUser, transcript[0].Role)
	assert.False(t, svc.IsGenerating())
}

func TestChatService_CompleteFailureRollsBack(t *testing.T) {
	backend := newFakeGeneration(newFakeStream())
	backend.completeErr = errors.New("model crashed")
	svc := newTestChat(readyRetrieval(""), backend)

	err := svc.SubmitUserMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrInference)

	transcript := svc.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, domain.RoleUser, transcript[0].Role)
	assert.False(t, svc.IsGenerating())
}

func TestChatService_ZeroTokenStreamFailureRollsBack(t *testing.T) {
	stream := newFakeStream()
	stream.err = errors.New("connection reset")
	stream.close()
	svc := newTestChat(readyRetrieval(""), newFakeGeneration(stream))

	err := svc.SubmitUserMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrInference)

	transcript := svc.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, domain.RoleUser, transcript[0].Role)
	assert.Empty(t, svc.TokensPerTurn())
}

func TestChatService_PartialOutputPreservedOnFailure(t *testing.T) {
	stream := newFakeStream("par", "tial")
	stream.err = errors.New("connection reset")
	stream.close()
	svc := newTestChat(readyRetrieval(""), newFakeGeneration(stream))

	err := svc.SubmitUserMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrInference)

	transcript := svc.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "partial", transcript[1].Content)
	assert.Empty(t, svc.TokensPerTurn(), "failed turns record no throughput")
}

func TestChatService_CancelAppendsMarkerOnce(t *testing.T) {
	stream := newFakeStream("Hel")
	backend := newFakeGeneration(stream)
	svc := newTestChat(readyRetrieval(""), backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.SubmitUserMessage(context.Background(), "hello")
	}()

	<-backend.started
	require.Eventually(t, func() bool {
		transcript := svc.Transcript()
		return len(transcript) == 2 && transcript[1].Content == "Hel"
	}, time.Second, time.Millisecond)

	svc.Cancel()
	require.NoError(t, <-errCh, "a cancelled turn resolves without error")

	transcript := svc.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "Hel"+stopMarker, transcript[1].Content)
	assert.True(t, stream.wasCancelled())
	assert.False(t, svc.IsGenerating())

	// A second cancel with nothing in flight is a no-op.
	svc.Cancel()
	assert.Equal(t, 1, strings.Count(svc.Transcript()[1].Content, stopMarker))
}

func TestChatService_CancelSurvivesBackendError(t *testing.T) {
	stream := newFakeStream("x")
	stream.cancelErr = errors.New("already closed")
	backend := newFakeGeneration(stream)
	svc := newTestChat(readyRetrieval(""), backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.SubmitUserMessage(context.Background(), "hello")
	}()

	<-backend.started
	require.Eventually(t, func() bool {
		transcript := svc.Transcript()
		return len(transcript) == 2 && transcript[1].Content == "x"
	}, time.Second, time.Millisecond)

	svc.Cancel()
	require.NoError(t, <-errCh)

	assert.False(t, svc.IsGenerating(), "cancel must release the session even when the backend errors")
	transcript := svc.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, "x"+stopMarker, transcript[1].Content)
}

func TestChatService_ResubmitBlockedUntilCancelledStreamSettles(t *testing.T) {
	stream := newFakeStream("Hel")
	stream.holdOpen = true
	backend := newFakeGeneration(stream)
	svc := newTestChat(readyRetrieval(""), backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.SubmitUserMessage(context.Background(), "first")
	}()

	<-backend.started
	require.Eventually(t, func() bool {
		transcript := svc.Transcript()
		return len(transcript) == 2 && transcript[1].Content == "Hel"
	}, time.Second, time.Millisecond)

	svc.Cancel()
	assert.False(t, svc.IsGenerating())

	// The backend has not closed the cancelled stream yet; a new turn must
	// wait for it to settle or its late fragments could land in the wrong
	// placeholder.
	err := svc.SubmitUserMessage(context.Background(), "second")
	assert.ErrorIs(t, err, domain.ErrGenerationInFlight)

	// A fragment emitted after the cancel stays in the cancelled turn.
	stream.tokens <- "late"
	stream.close()
	require.NoError(t, <-errCh)

	stream2 := newFakeStream("World")
	stream2.close()
	backend.mu.Lock()
	backend.stream = stream2
	backend.mu.Unlock()

	require.NoError(t, svc.SubmitUserMessage(context.Background(), "second"))

	transcript := svc.Transcript()
	require.Len(t, transcript, 4)
	assert.Equal(t, "World", transcript[3].Content)
	assert.NotContains(t, transcript[3].Content, "late")
	assert.Contains(t, transcript[1].Content, stopMarker)
	assert.Equal(t, 1, strings.Count(transcript[1].Content, stopMarker))
	assert.False(t, svc.IsGenerating())
}

func TestChatService_CancelDuringRetrievalRollsBack(t *testing.T) {
	retrieval := readyRetrieval("")
	retrieval.block = make(chan struct{})
	backend := newFakeGeneration(newFakeStream())
	svc := newTestChat(retrieval, backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.SubmitUserMessage(context.Background(), "hello")
	}()

	require.Eventually(t, svc.IsGenerating, time.Second, time.Millisecond)
	svc.Cancel()
	require.NoError(t, <-errCh, "a cancelled turn resolves without error")

	// Nothing streamed, so no stop marker: the placeholder is rolled back
	// instead of surfacing a marker-only answer.
	transcript := svc.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, domain.RoleUser, transcript[0].Role)
	assert.NotContains(t, transcript[0].Content, stopMarker)
	assert.False(t, svc.IsGenerating())

	// The session is immediately usable again.
	retrieval.block = nil
	stream := newFakeStream("ok")
	stream.close()
	backend.mu.Lock()
	backend.stream = stream
	backend.mu.Unlock()

	require.NoError(t, svc.SubmitUserMessage(context.Background(), "hello again"))
	assert.Equal(t, "ok", svc.Transcript()[2].Content)
}

func TestChatService_ReloadPrompts(t *testing.T) {
	svc := newTestChat(readyRetrieval(""), newFakeGeneration(newFakeStream()))

	// No store configured: a reload is a harmless no-op.
	svc.ReloadPrompts()

	prompts := &fakePrompts{}
	svc.SetPromptStore(prompts)
	svc.ReloadPrompts()
	svc.ReloadPrompts()
	assert.Equal(t, 2, prompts.reloads)
}

func TestChatConfig_Defaults(t *testing.T) {
	cfg := ChatConfig{}.withDefaults()
	assert.Equal(t, DefaultTopK, cfg.TopK)
	assert.InDelta(t, DefaultThreshold, cfg.Threshold, 1e-9)
	assert.Equal(t, DefaultMaxContextLength, cfg.MaxContextLength)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.InDelta(t, DefaultTemperature, cfg.Temperature, 1e-9)
	assert.Zero(t, cfg.Timeout)

	custom := ChatConfig{TopK: 3, Threshold: 0.7, MaxTokens: 64}.withDefaults()
	assert.Equal(t, 3, custom.TopK)
	assert.InDelta(t, 0.7, custom.Threshold, 1e-9)
	assert.Equal(t, 64, custom.MaxTokens)
}
