package store

// DefaultConversationTitle is the title a conversation carries until its first user message.
const DefaultConversationTitle = "New Conversation"

// ChatType discriminates the owner of a conversation.
type ChatType string

const (
	ChatTypeUser  ChatType = "user"
	ChatTypeGroup ChatType = "group"
)

// Context entry types.
const (
	ContextTypePrimary   = "primary"
	ContextTypeSecondary = "secondary"
)

// Scopes a conversation context or document can belong to.
const (
	ScopePersonal = "personal"
	ScopeGroup    = "group"
	ScopePublic   = "public"
)

// Tag categories.
const (
	TagCategoryParticipant = "participant"
	TagCategoryDocument    = "document"
	TagCategoryAgent       = "agent"
	TagCategoryModel       = "model"
	TagCategoryWeb         = "web"
	TagCategorySemantic    = "semantic"
)

// ContextEntry describes one ownership context of a conversation.
type ContextEntry struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// TagScope is the owning scope of a document tag.
type TagScope struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Tag is a typed conversation tag. Which fields are set depends on Category:
// participant uses UserID/Name/Email, document uses DocumentID/Title/Scope/ChunkIDs/Classification,
// every other category uses Value.
type Tag struct {
	Category string `json:"category"`
	Value    string `json:"value,omitempty"`

	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`

	DocumentID     string    `json:"document_id,omitempty"`
	Title          string    `json:"title,omitempty"`
	Scope          *TagScope `json:"scope,omitempty"`
	ChunkIDs       []string  `json:"chunk_ids,omitempty"`
	Classification string    `json:"classification,omitempty"`
}

// Key returns the deduplication key of the tag.
func (t Tag) Key() TagKey {
	switch t.Category {
	case TagCategoryParticipant:
		return TagKey{Category: t.Category, Key: t.UserID}
	case TagCategoryDocument:
		return TagKey{Category: t.Category, Key: t.DocumentID}
	default:
		return TagKey{Category: t.Category, Key: t.Value}
	}
}

// TagKey identifies a tag by category and natural key.
type TagKey struct {
	Category string
	Key      string
}

// Conversation is the durable record of one chat thread.
type Conversation struct {
	ID       string
	UserID   string
	GroupID  string
	ChatType ChatType
	Title    string
	// LastUpdatedTs is in unix microseconds.
	LastUpdatedTs  int64
	Classification []string
	Context        []ContextEntry
	Tags           []Tag
	Strict         bool
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Classification = append([]string(nil), c.Classification...)
	out.Context = append([]ContextEntry(nil), c.Context...)
	out.Tags = make([]Tag, len(c.Tags))
	for i, tag := range c.Tags {
		out.Tags[i] = tag
		out.Tags[i].ChunkIDs = append([]string(nil), tag.ChunkIDs...)
		if tag.Scope != nil {
			scope := *tag.Scope
			out.Tags[i].Scope = &scope
		}
	}
	return &out
}

type FindConversation struct {
	ID     *string
	UserID *string
}
