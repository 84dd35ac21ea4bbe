package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "hello world", req.Prompt)

		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	backend := NewEmbeddingBackend(Config{BaseURL: server.URL, Model: "test-model", Dimensions: 3})

	vec, err := backend.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Len(t, vec, 3)
	assert.InDelta(t, 0.1, vec[0], 1e-6)
	assert.InDelta(t, 0.3, vec[2], 1e-6)
	assert.Equal(t, 3, backend.Dimensions())
}

func TestEmbed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	backend := NewEmbeddingBackend(Config{BaseURL: server.URL})

	_, err := backend.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestEmbed_RateLimitHonoursContext(t *testing.T) {
	// Limiter burst is 1, so a second immediate call has to wait; an already
	// cancelled context fails the wait instead of blocking.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1}})
	}))
	defer server.Close()

	backend := NewEmbeddingBackend(Config{BaseURL: server.URL, RequestsPerSecond: 0.001})

	_, err := backend.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = backend.Embed(ctx, "second")
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer server.Close()

	backend := NewEmbeddingBackend(Config{BaseURL: server.URL})
	assert.NoError(t, backend.Ping(context.Background()))
}

func TestNewEmbeddingBackend_Defaults(t *testing.T) {
	backend := NewEmbeddingBackend(Config{})
	assert.Equal(t, DefaultModel, backend.ModelName())
	assert.Equal(t, DefaultDimensions, backend.Dimensions())
	assert.Equal(t, DefaultBaseURL, backend.baseURL)
}
