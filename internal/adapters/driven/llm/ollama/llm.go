// Package ollama provides a streaming generation backend adapter using Ollama.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
)

// Ensure GenerationBackend implements the interface.
var _ driven.GenerationBackend = (*GenerationBackend)(nil)

// Default configuration values.
const (
	DefaultBaseURL     = "http://localhost:11434"
	DefaultModel       = "llama3.2"
	DefaultPingTimeout = 10 * time.Second
)

// Config holds configuration for the Ollama generation backend.
type Config struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the model to use (default: llama3.2).
	Model string

	// PingTimeout bounds the readiness check (default: 10s).
	PingTimeout time.Duration
}

// GenerationBackend streams chat completions from Ollama.
// The HTTP client carries no timeout: a streamed generation is bounded by
// the caller's context, not a fixed request deadline.
type GenerationBackend struct {
	client      *http.Client
	baseURL     string
	model       string
	pingTimeout time.Duration
}

// chatRequest is the Ollama /api/chat request format.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *options      `json:"options,omitempty"`
}

// options holds generation parameters.
type options struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// chatMessage is the Ollama chat message format.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatStreamResponse is one NDJSON chunk of the streamed /api/chat response.
// The final chunk (Done == true) carries the evaluation counters.
type chatStreamResponse struct {
	Message      chatMessage `json:"message"`
	Done         bool        `json:"done"`
	EvalCount    int         `json:"eval_count"`
	EvalDuration int64       `json:"eval_duration"` // nanoseconds
}

// NewGenerationBackend creates a new Ollama generation backend.
func NewGenerationBackend(cfg Config) *GenerationBackend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}

	return &GenerationBackend{
		client:      &http.Client{},
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		pingTimeout: cfg.PingTimeout,
	}
}

// Complete starts a streaming chat completion. Token fragments are delivered
// on the returned stream in the order Ollama emits them.
func (s *GenerationBackend) Complete(
	ctx context.Context, messages []driven.ChatMessage, opts driven.CompletionOptions,
) (driven.CompletionStream, error) {
	chatMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = chatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	reqBody := chatRequest{
		Model:    s.model,
		Messages: chatMessages,
		Stream:   true,
	}
	if opts.MaxTokens > 0 || opts.Temperature > 0 || len(opts.Stop) > 0 {
		reqBody.Options = &options{
			NumPredict:  opts.MaxTokens,
			Temperature: opts.Temperature,
			Stop:        opts.Stop,
		}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(
		streamCtx,
		http.MethodPost,
		s.baseURL+"/api/chat",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer cancel()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	stream := &completionStream{
		tokens: make(chan string, 16),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go stream.consume(streamCtx, resp.Body)

	return stream, nil
}

// completionStream adapts the NDJSON response body to a token channel.
type completionStream struct {
	tokens chan string
	done   chan struct{}
	cancel context.CancelFunc

	// set by consume before done is closed
	result driven.CompletionResult
	err    error
}

// consume decodes stream chunks until the final one, feeding the token channel.
func (s *completionStream) consume(ctx context.Context, body io.ReadCloser) {
	defer close(s.done)
	defer close(s.tokens)
	defer body.Close()
	defer s.cancel()

	start := time.Now()
	count := 0
	dec := json.NewDecoder(body)

	for {
		var chunk chatStreamResponse
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("stream ended without final chunk")
			} else if ctx.Err() != nil {
				// Cancelled mid-stream: tokens already delivered stand.
				s.err = ctx.Err()
			} else {
				s.err = fmt.Errorf("decode stream: %w", err)
			}
			return
		}

		if chunk.Message.Content != "" {
			select {
			case s.tokens <- chunk.Message.Content:
				count++
			case <-ctx.Done():
				s.err = ctx.Err()
				return
			}
		}

		if chunk.Done {
			s.result = finalResult(chunk, count, time.Since(start))
			return
		}
	}
}

// finalResult derives the throughput measurement from the closing chunk,
// falling back to wall-clock timing when Ollama omits the counters.
func finalResult(chunk chatStreamResponse, count int, elapsed time.Duration) driven.CompletionResult {
	result := driven.CompletionResult{
		TokenCount: chunk.EvalCount,
		Duration:   elapsed,
	}
	if result.TokenCount == 0 {
		result.TokenCount = count
	}

	if chunk.EvalDuration > 0 {
		result.TokensPerSecond = float64(chunk.EvalCount) / (float64(chunk.EvalDuration) / 1e9)
	} else if elapsed > 0 {
		result.TokensPerSecond = float64(result.TokenCount) / elapsed.Seconds()
	}

	return result
}

// Tokens returns the channel of incoming token fragments.
func (s *completionStream) Tokens() <-chan string {
	return s.tokens
}

// Result blocks until the stream finishes and returns the final measurement.
func (s *completionStream) Result() (driven.CompletionResult, error) {
	<-s.done
	return s.result, s.err
}

// Cancel aborts the in-flight request. The token channel closes once the
// transport notices the cancellation.
func (s *completionStream) Cancel() error {
	s.cancel()
	return nil
}

// ModelName returns the name of the model being used.
func (s *GenerationBackend) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by checking the /api/tags endpoint.
// This is a lightweight check that validates connectivity without running inference.
func (s *GenerationBackend) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pingCtx, http.MethodGet, s.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("ollama: API returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("ollama: API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close releases resources.
func (s *GenerationBackend) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}
