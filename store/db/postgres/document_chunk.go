package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

const chunkColumns = `c.id, c.document_id, c.user_id, c.group_id, c.public_workspace_id, c.file_name, c.version, c.chunk_text, c.chunk_sequence, c.page_number, c.classification, c.created_ts`

func (d *DB) UpsertDocumentChunk(ctx context.Context, upsert *store.DocumentChunk) (*store.DocumentChunk, error) {
	var embedding any
	if len(upsert.Embedding) > 0 {
		embedding = pgvector.NewVector(upsert.Embedding)
	}

	args := []any{
		upsert.ID, upsert.DocumentID, upsert.UserID, upsert.GroupID, upsert.PublicWorkspaceID, upsert.FileName,
		upsert.Version, upsert.ChunkText, upsert.ChunkSequence, upsert.PageNumber, upsert.Classification, embedding, upsert.CreatedTs,
	}
	stmt := `INSERT INTO document_chunk (id, document_id, user_id, group_id, public_workspace_id, file_name, version, chunk_text, chunk_sequence, page_number, classification, embedding, created_ts)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (id) DO UPDATE SET
			chunk_text = EXCLUDED.chunk_text,
			chunk_sequence = EXCLUDED.chunk_sequence,
			page_number = EXCLUDED.page_number,
			classification = EXCLUDED.classification,
			version = EXCLUDED.version,
			embedding = EXCLUDED.embedding`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to upsert document_chunk")
	}
	return upsert, nil
}

// SearchChunksByVector ranks chunks by cosine similarity; <=> is cosine distance.
func (d *DB) SearchChunksByVector(ctx context.Context, find *store.FindDocumentChunk, embedding []float32) ([]*store.ChunkResult, error) {
	args := []any{pgvector.NewVector(embedding)}
	where, args := chunkScopeWhere(find, args)
	where = append(where, "c.embedding IS NOT NULL")
	args = append(args, find.Limit)

	query := `SELECT ` + chunkColumns + `, 1 - (c.embedding <=> ` + placeholder(1) + `) AS score
		FROM document_chunk c
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY c.embedding <=> ` + placeholder(1) + `
		LIMIT ` + placeholder(len(args))
	return d.queryChunks(ctx, query, args...)
}

// SearchChunksByKeyword ranks chunks with ts_rank; 'simple' keeps mixed-language text intact.
func (d *DB) SearchChunksByKeyword(ctx context.Context, find *store.FindDocumentChunk, query string) ([]*store.ChunkResult, error) {
	args := []any{query}
	where, args := chunkScopeWhere(find, args)
	where = append(where, "to_tsvector('simple', c.chunk_text) @@ plainto_tsquery('simple', "+placeholder(1)+")")
	args = append(args, find.Limit)

	stmt := `SELECT ` + chunkColumns + `, ts_rank(to_tsvector('simple', c.chunk_text), plainto_tsquery('simple', ` + placeholder(1) + `)) AS score
		FROM document_chunk c
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY score DESC, c.created_ts DESC
		LIMIT ` + placeholder(len(args))
	return d.queryChunks(ctx, stmt, args...)
}

func (d *DB) queryChunks(ctx context.Context, query string, args ...any) ([]*store.ChunkResult, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search document_chunk")
	}
	defer rows.Close()

	list := make([]*store.ChunkResult, 0)
	for rows.Next() {
		result, err := scanChunkResult(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, result)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate document_chunk")
	}
	return list, nil
}

func scanChunkResult(rows *sql.Rows) (*store.ChunkResult, error) {
	c := &store.DocumentChunk{}
	var score float64
	if err := rows.Scan(&c.ID, &c.DocumentID, &c.UserID, &c.GroupID, &c.PublicWorkspaceID, &c.FileName, &c.Version,
		&c.ChunkText, &c.ChunkSequence, &c.PageNumber, &c.Classification, &c.CreatedTs, &score); err != nil {
		return nil, errors.Wrap(err, "failed to scan document_chunk")
	}
	return &store.ChunkResult{Chunk: c, Score: score}, nil
}
