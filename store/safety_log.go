package store

// SafetyLog records one blocked user message.
type SafetyLog struct {
	ID                  string
	UserID              string
	ConversationID      string
	Message             string
	TriggeredCategories []CategorySeverity
	BlocklistMatches    []BlocklistMatch
	Reason              string
	CreatedTs           int64
}

type FindSafetyLog struct {
	ConversationID *string
	UserID         *string
}
