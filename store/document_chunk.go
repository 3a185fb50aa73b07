package store

// DocumentChunk is one indexed slice of an uploaded document.
type DocumentChunk struct {
	// ID follows the "{document_id}_{n}" convention.
	ID                string
	DocumentID        string
	UserID            string
	GroupID           string
	PublicWorkspaceID string
	FileName          string
	Version           string
	ChunkText         string
	ChunkSequence     int
	PageNumber        int
	Classification    string
	Embedding         []float32
	CreatedTs         int64
}

// DocumentScope selects which documents a search may see.
type DocumentScope string

const (
	DocumentScopeAll      DocumentScope = "all"
	DocumentScopePersonal DocumentScope = "personal"
	DocumentScopeGroup    DocumentScope = "group"
)

// FindDocumentChunk scopes a chunk search.
type FindDocumentChunk struct {
	UserID        string
	Scope         DocumentScope
	ActiveGroupID string
	DocumentID    string
	Limit         int
}

// ChunkResult is a chunk with its similarity or rank score.
type ChunkResult struct {
	Chunk *DocumentChunk
	Score float64
}
