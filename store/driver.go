package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate applies the schema if the database is not initialized yet.
	Migrate(ctx context.Context) error

	// Conversation model related methods.
	UpsertConversation(ctx context.Context, upsert *Conversation) (*Conversation, error)
	GetConversation(ctx context.Context, find *FindConversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)

	// Message model related methods.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)

	// SafetyLog model related methods.
	CreateSafetyLog(ctx context.Context, create *SafetyLog) (*SafetyLog, error)
	ListSafetyLogs(ctx context.Context, find *FindSafetyLog) ([]*SafetyLog, error)

	// Fact model related methods.
	CreateFact(ctx context.Context, create *Fact) (*Fact, error)
	ListFacts(ctx context.Context, find *FindFact) ([]*Fact, error)
	DeleteFact(ctx context.Context, delete *DeleteFact) error

	// DocumentChunk model related methods.
	UpsertDocumentChunk(ctx context.Context, upsert *DocumentChunk) (*DocumentChunk, error)
	SearchChunksByVector(ctx context.Context, find *FindDocumentChunk, embedding []float32) ([]*ChunkResult, error)
	SearchChunksByKeyword(ctx context.Context, find *FindDocumentChunk, query string) ([]*ChunkResult, error)

	// UserSettings model related methods.
	UpsertUserSettings(ctx context.Context, upsert *UserSettings) (*UserSettings, error)
	GetUserSettings(ctx context.Context, userID string) (*UserSettings, error)
}
