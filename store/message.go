package store

// MessageRole is the role of a persisted message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleSafety    MessageRole = "safety"
	RoleBlocked   MessageRole = "blocked"
	RoleImage     MessageRole = "image"
	RoleFile      MessageRole = "file"
)

// SortOrder of a message query.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// HybridCitation points at one retrieved document chunk.
type HybridCitation struct {
	FileName       string  `json:"file_name"`
	CitationID     string  `json:"citation_id"`
	PageNumber     int     `json:"page_number"`
	ChunkID        string  `json:"chunk_id"`
	ChunkSequence  int     `json:"chunk_sequence"`
	Score          float64 `json:"score"`
	GroupID        string  `json:"group_id,omitempty"`
	Version        string  `json:"version"`
	Classification string  `json:"classification,omitempty"`
}

// WebCitation points at one web search result.
type WebCitation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// CategorySeverity is one content-safety category verdict.
type CategorySeverity struct {
	Category string `json:"category"`
	Severity int    `json:"severity"`
}

// BlocklistMatch is one content-safety blocklist hit.
type BlocklistMatch struct {
	BlocklistName     string `json:"blocklistName"`
	BlocklistItemID   string `json:"blocklistItemId"`
	BlocklistItemText string `json:"blocklistItemText"`
}

// MessageExtra holds role-specific fields persisted alongside a message.
type MessageExtra struct {
	// assistant
	Augmented          bool             `json:"augmented,omitempty"`
	HybridCitations    []HybridCitation `json:"hybrid_citations,omitempty"`
	HybridSearchQuery  string           `json:"hybridsearch_query,omitempty"`
	WebSearchCitations []WebCitation    `json:"web_search_citations,omitempty"`
	// assistant and augmentation system messages
	UserMessage string `json:"user_message,omitempty"`
	SearchQuery string `json:"search_query,omitempty"`
	// image
	Prompt string `json:"prompt,omitempty"`
	// file
	Filename    string `json:"filename,omitempty"`
	FileContent string `json:"file_content,omitempty"`
	// safety
	TriggeredCategories []CategorySeverity `json:"triggered_categories,omitempty"`
	BlocklistMatches    []BlocklistMatch   `json:"blocklist_matches,omitempty"`
}

// Message is one append-only entry of a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	// Content is text, or the image URL for image messages.
	Content string
	// CreatedTs is in unix microseconds.
	CreatedTs           int64
	ModelDeploymentName string
	Metadata            map[string]any
	Extra               MessageExtra
}

type FindMessage struct {
	ConversationID string
	Order          SortOrder
	// Limit of zero means no limit.
	Limit int
}
