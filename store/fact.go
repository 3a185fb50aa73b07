package store

// Fact is a small durable piece of context scoped to an agent and a user or group.
type Fact struct {
	ID             string
	AgentID        string
	ScopeType      string
	ScopeID        string
	ConversationID string
	Value          string
	CreatedTs      int64
}

type FindFact struct {
	AgentID        *string
	ScopeType      *string
	ScopeID        *string
	ConversationID *string
}

type DeleteFact struct {
	ID      string
	AgentID string
}
