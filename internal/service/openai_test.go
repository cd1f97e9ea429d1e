package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmatch/internal/config"
	"carmatch/internal/logger"
)

func newOpenAITestServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/embeddings":
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			// answer in reverse order, clients must honor the index
			data := make([]map[string]interface{}, 0, len(req.Input))
			for i := len(req.Input) - 1; i >= 0; i-- {
				data = append(data, map[string]interface{}{
					"object":    "embedding",
					"index":     i,
					"embedding": []float32{float32(len(req.Input[i]))},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data, "model": "emb"})
		case "/chat/completions":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"model":  "chat",
				"choices": []map[string]interface{}{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": "Qual seu orçamento?"},
					"finish_reason": "stop",
				}},
				"usage": map[string]int{"total_tokens": 12},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOpenAIClient(baseURL string, enabled bool) *OpenAIClient {
	return NewOpenAIClient(&config.OpenAIConfig{
		APIKey:         "sk-test",
		APIBase:        baseURL,
		ChatModel:      "chat",
		EmbeddingModel: "emb",
		BatchSize:      2,
		Enabled:        enabled,
	}, logger.NewNop())
}

func TestOpenAIEmbedBatchKeepsOrderAcrossBatches(t *testing.T) {
	var calls int32
	srv := newOpenAITestServer(t, &calls)
	client := newTestOpenAIClient(srv.URL, true)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := client.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, []float32{float32(len(texts[i]))}, v, "text %d", i)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestOpenAIComplete(t *testing.T) {
	var calls int32
	srv := newOpenAITestServer(t, &calls)
	client := newTestOpenAIClient(srv.URL, true)

	out, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "oi"}}, CompletionOptions{JSON: true})
	require.NoError(t, err)
	assert.Equal(t, "Qual seu orçamento?", out)
}

func TestOpenAIDisabled(t *testing.T) {
	client := newTestOpenAIClient("http://127.0.0.1:0", false)

	_, err := client.Complete(context.Background(), nil, CompletionOptions{})
	assert.True(t, errors.Is(err, ErrInferenceUnavailable))
	_, err = client.EmbedBatch(context.Background(), []string{"x"})
	assert.True(t, errors.Is(err, ErrInferenceUnavailable))
}
