package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError bool
	}{
		{
			name: "OpenAI config",
			cfg: &EmbeddingConfig{
				Provider:   "openai",
				Model:      "text-embedding-3-small",
				Dimensions: 1536,
				APIKey:     "test-key",
			},
		},
		{
			name: "SiliconFlow config",
			cfg: &EmbeddingConfig{
				Provider:   "siliconflow",
				Model:      "BAAI/bge-m3",
				Dimensions: 1024,
				APIKey:     "test-key",
				BaseURL:    "https://api.siliconflow.cn/v1",
			},
		},
		{
			name:        "Unsupported provider",
			cfg:         &EmbeddingConfig{Provider: "unsupported"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewEmbeddingService(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Dimensions, svc.Dimensions())
		})
	}
}

func TestEmbeddingService_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "openai", Model: "m", Dimensions: 3, APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	vector, err := svc.Embed(context.Background(), "refund policy")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
}

func TestEmbeddingService_EmbedBatchEmpty(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "openai", Model: "m", APIKey: "k"})
	require.NoError(t, err)

	_, err = svc.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}
