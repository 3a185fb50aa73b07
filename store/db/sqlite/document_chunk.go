package sqlite

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

const chunkColumns = `id, document_id, user_id, group_id, public_workspace_id, file_name, version, chunk_text, chunk_sequence, page_number, classification, embedding, created_ts`

func (d *DB) UpsertDocumentChunk(ctx context.Context, upsert *store.DocumentChunk) (*store.DocumentChunk, error) {
	embedding, err := marshalJSON(upsert.Embedding, "[]")
	if err != nil {
		return nil, err
	}

	args := []any{
		upsert.ID, upsert.DocumentID, upsert.UserID, upsert.GroupID, upsert.PublicWorkspaceID, upsert.FileName,
		upsert.Version, upsert.ChunkText, upsert.ChunkSequence, upsert.PageNumber, upsert.Classification, embedding, upsert.CreatedTs,
	}
	stmt := `INSERT INTO document_chunk (` + chunkColumns + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (id) DO UPDATE SET
			chunk_text = excluded.chunk_text,
			chunk_sequence = excluded.chunk_sequence,
			page_number = excluded.page_number,
			classification = excluded.classification,
			version = excluded.version,
			embedding = excluded.embedding`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to upsert document_chunk")
	}
	return upsert, nil
}

func (d *DB) SearchChunksByVector(ctx context.Context, find *store.FindDocumentChunk, embedding []float32) ([]*store.ChunkResult, error) {
	chunks, err := d.listScopedChunks(ctx, find, nil, nil)
	if err != nil {
		return nil, err
	}

	results := make([]*store.ChunkResult, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		results = append(results, &store.ChunkResult{Chunk: c, Score: cosineSimilarity(embedding, c.Embedding)})
	}
	return topResults(results, find.Limit), nil
}

func (d *DB) SearchChunksByKeyword(ctx context.Context, find *store.FindDocumentChunk, query string) ([]*store.ChunkResult, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []*store.ChunkResult{}, nil
	}

	ors := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for _, term := range terms {
		ors = append(ors, "LOWER(chunk_text) LIKE ?")
		args = append(args, "%"+term+"%")
	}
	chunks, err := d.listScopedChunks(ctx, find, []string{"(" + strings.Join(ors, " OR ") + ")"}, args)
	if err != nil {
		return nil, err
	}

	results := make([]*store.ChunkResult, 0, len(chunks))
	for _, c := range chunks {
		text := strings.ToLower(c.ChunkText)
		hits := 0
		for _, term := range terms {
			hits += strings.Count(text, term)
		}
		results = append(results, &store.ChunkResult{Chunk: c, Score: float64(hits) / float64(len(terms))})
	}
	return topResults(results, find.Limit), nil
}

func (d *DB) listScopedChunks(ctx context.Context, find *store.FindDocumentChunk, extraWhere []string, extraArgs []any) ([]*store.DocumentChunk, error) {
	where, args := chunkScopeWhere(find, nil)
	where = append(where, extraWhere...)
	args = append(args, extraArgs...)

	query := `SELECT ` + chunkColumns + ` FROM document_chunk WHERE ` + strings.Join(where, " AND ")
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search document_chunk")
	}
	defer rows.Close()

	list := make([]*store.DocumentChunk, 0)
	for rows.Next() {
		c := &store.DocumentChunk{}
		var embedding string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.UserID, &c.GroupID, &c.PublicWorkspaceID, &c.FileName, &c.Version,
			&c.ChunkText, &c.ChunkSequence, &c.PageNumber, &c.Classification, &embedding, &c.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan document_chunk")
		}
		if err := json.Unmarshal([]byte(embedding), &c.Embedding); err != nil {
			return nil, errors.Wrap(err, "failed to decode embedding")
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate document_chunk")
	}
	return list, nil
}

func topResults(results []*store.ChunkResult, limit int) []*store.ChunkResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
