// Package search implements the retrieval collaborators of a chat turn:
// hybrid (vector plus keyword) document search and web search.
package search

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/store"
)

// rrfK is the Reciprocal Rank Fusion constant.
const rrfK = 60

// Query scopes one hybrid search.
type Query struct {
	Text          string
	UserID        string
	TopN          int
	DocScope      store.DocumentScope
	DocumentID    string
	ActiveGroupID string
}

// HybridSearch returns the chunks most relevant to a query, best first.
type HybridSearch interface {
	Search(ctx context.Context, q Query) ([]*store.ChunkResult, error)
}

// ChunkSearcher is the store surface the hybrid searcher reads from.
type ChunkSearcher interface {
	SearchChunksByVector(ctx context.Context, find *store.FindDocumentChunk, embedding []float32) ([]*store.ChunkResult, error)
	SearchChunksByKeyword(ctx context.Context, find *store.FindDocumentChunk, query string) ([]*store.ChunkResult, error)
}

// ErrEmbedding marks a failure to embed the search query.
var ErrEmbedding = errors.New("failed to embed search query")

// HybridSearcher fuses vector and keyword rankings with RRF.
type HybridSearcher struct {
	embedder ai.EmbeddingService
	chunks   ChunkSearcher
}

func NewHybridSearcher(embedder ai.EmbeddingService, chunks ChunkSearcher) *HybridSearcher {
	return &HybridSearcher{embedder: embedder, chunks: chunks}
}

func (s *HybridSearcher) Search(ctx context.Context, q Query) ([]*store.ChunkResult, error) {
	if q.TopN <= 0 {
		return []*store.ChunkResult{}, nil
	}
	scope := q.DocScope
	if scope == "" {
		scope = store.DocumentScopeAll
	}
	find := &store.FindDocumentChunk{
		UserID:        q.UserID,
		Scope:         scope,
		ActiveGroupID: q.ActiveGroupID,
		DocumentID:    q.DocumentID,
		// Each leg fetches more than it keeps so fusion has overlap to work with.
		Limit: q.TopN * 2,
	}

	var vectorResults, keywordResults []*store.ChunkResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		embedding, err := s.embedder.Embed(gctx, q.Text)
		if err != nil {
			return errors.Wrap(ErrEmbedding, err.Error())
		}
		vectorResults, err = s.chunks.SearchChunksByVector(gctx, find, embedding)
		return errors.Wrap(err, "vector search failed")
	})
	g.Go(func() error {
		var err error
		keywordResults, err = s.chunks.SearchChunksByKeyword(gctx, find, q.Text)
		return errors.Wrap(err, "keyword search failed")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuse(q.TopN, vectorResults, keywordResults), nil
}

// fuse merges rankings by Reciprocal Rank Fusion, sorts by fused score and keeps topN.
func fuse(topN int, rankings ...[]*store.ChunkResult) []*store.ChunkResult {
	scores := make(map[string]float64)
	chunks := make(map[string]*store.DocumentChunk)
	order := make([]string, 0)
	for _, ranking := range rankings {
		for rank, r := range ranking {
			id := r.Chunk.ID
			if _, ok := chunks[id]; !ok {
				chunks[id] = r.Chunk
				order = append(order, id)
			}
			scores[id] += 1.0 / float64(rrfK+rank+1)
		}
	}

	results := make([]*store.ChunkResult, 0, len(order))
	for _, id := range order {
		results = append(results, &store.ChunkResult{Chunk: chunks[id], Score: scores[id]})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}
