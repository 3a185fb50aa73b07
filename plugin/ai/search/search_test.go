package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/store"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return [][]float32{{1, 0}}, f.err
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

type fakeChunks struct {
	vector, keyword []*store.ChunkResult
	lastFind        *store.FindDocumentChunk
}

func (f *fakeChunks) SearchChunksByVector(_ context.Context, find *store.FindDocumentChunk, _ []float32) ([]*store.ChunkResult, error) {
	f.lastFind = find
	return f.vector, nil
}

func (f *fakeChunks) SearchChunksByKeyword(context.Context, *store.FindDocumentChunk, string) ([]*store.ChunkResult, error) {
	return f.keyword, nil
}

func chunk(id string) *store.ChunkResult {
	return &store.ChunkResult{Chunk: &store.DocumentChunk{ID: id}}
}

func ids(results []*store.ChunkResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Chunk.ID)
	}
	return out
}

func TestHybridSearcher_FusesRankings(t *testing.T) {
	chunks := &fakeChunks{
		vector:  []*store.ChunkResult{chunk("a"), chunk("b"), chunk("c")},
		keyword: []*store.ChunkResult{chunk("c"), chunk("a"), chunk("d")},
	}
	s := NewHybridSearcher(&fakeEmbedder{}, chunks)

	results, err := s.Search(context.Background(), Query{Text: "refund", UserID: "u1", TopN: 3, ActiveGroupID: "g1"})
	require.NoError(t, err)
	// a: 1/61 + 1/62, c: 1/63 + 1/61, b: 1/62, d: 1/63
	assert.Equal(t, []string{"a", "c", "b"}, ids(results))
	assert.Greater(t, results[0].Score, results[1].Score)

	require.NotNil(t, chunks.lastFind)
	assert.Equal(t, store.DocumentScopeAll, chunks.lastFind.Scope)
	assert.Equal(t, "g1", chunks.lastFind.ActiveGroupID)
	assert.Equal(t, 6, chunks.lastFind.Limit)
}

func TestHybridSearcher_EmbeddingFailure(t *testing.T) {
	s := NewHybridSearcher(&fakeEmbedder{err: errors.New("bad deployment")}, &fakeChunks{})
	_, err := s.Search(context.Background(), Query{Text: "refund", TopN: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestHybridSearcher_ZeroTopN(t *testing.T) {
	s := NewHybridSearcher(&fakeEmbedder{}, &fakeChunks{vector: []*store.ChunkResult{chunk("a")}})
	results, err := s.Search(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWebClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "capital of france", r.URL.Query().Get("q"))
		assert.Equal(t, "key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		_, _ = w.Write([]byte(`{"webPages": {"value": [
			{"name": "France", "url": "https://example.com/fr", "snippet": "Paris is the capital."}
		]}}`))
	}))
	defer server.Close()

	c, err := NewWebClient(WebConfig{Endpoint: server.URL, Key: "key", RequestsPerSecond: 100})
	require.NoError(t, err)

	results, err := c.Search(context.Background(), "capital of france")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, WebResult{Name: "France", URL: "https://example.com/fr", Snippet: "Paris is the capital."}, results[0])
}

func TestWebClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := NewWebClient(WebConfig{Endpoint: server.URL, RequestsPerSecond: 100})
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "x")
	assert.Error(t, err)
}
