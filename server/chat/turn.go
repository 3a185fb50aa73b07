// Package chat runs one chat turn: safety screening, retrieval augmentation,
// bounded history, the provider fallback chain and persistence of the result.
package chat

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/hrygo/chatturn/store"
)

const (
	// DefaultTopN is the hybrid search result count used when the request has none.
	DefaultTopN = 12
	// MaxTopN caps the hybrid search result count.
	MaxTopN = 500
)

// TopN is the requested hybrid search result count exactly as the client sent it.
// A JSON number or numeric string is accepted; anything else falls back to DefaultTopN.
type TopN struct {
	raw    string
	number bool
	set    bool
}

// TopNOf returns a TopN holding n.
func TopNOf(n int) TopN {
	return TopN{raw: strconv.Itoa(n), number: true, set: true}
}

// UnmarshalJSON never fails; unusable input is resolved by Value.
func (t *TopN) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = TopN{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TopN{raw: s, set: true}
		return nil
	}
	*t = TopN{raw: string(data), number: true, set: true}
	return nil
}

// Value returns the effective result count: DefaultTopN when unset, unparsable or
// below one, MaxTopN when above the cap.
func (t TopN) Value() int {
	if !t.set {
		return DefaultTopN
	}
	n, ok := t.parse()
	switch {
	case !ok || n < 1:
		return DefaultTopN
	case n > MaxTopN:
		return MaxTopN
	default:
		return n
	}
}

func (t TopN) parse() (int, bool) {
	raw := strings.TrimSpace(t.raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	if !t.number {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 {
		return MaxTopN + 1, true
	}
	return int(f), true
}

// TurnOptions are the per-turn toggles of a chat request.
type TurnOptions struct {
	HybridSearch       bool                `json:"hybrid_search"`
	SelectedDocumentID string              `json:"selected_document_id"`
	WebSearch          bool                `json:"bing_search"`
	ImageGeneration    bool                `json:"image_generation"`
	DocScope           store.DocumentScope `json:"doc_scope"`
	ActiveGroupID      string              `json:"active_group_id"`
	ModelDeployment    string              `json:"model_deployment"`
	TopN               TopN                `json:"top_n"`
	ChatType           store.ChatType      `json:"chat_type"`
}

// TurnRequest is one submitted user message.
type TurnRequest struct {
	Message        string      `json:"message"`
	ConversationID string      `json:"conversation_id"`
	UserID         string      `json:"user_id"`
	Options        TurnOptions `json:"options"`
}

// TurnResult is the reply payload of a turn. Blocked and fallback-exhausted turns
// are results too; only turn-fatal failures are returned as errors.
type TurnResult struct {
	Reply                string                   `json:"reply"`
	ConversationID       string                   `json:"conversation_id"`
	ConversationTitle    string                   `json:"conversation_title"`
	Classification       []string                 `json:"classification"`
	ModelDeploymentName  string                   `json:"model_deployment_name,omitempty"`
	MessageID            string                   `json:"message_id"`
	Blocked              bool                     `json:"blocked"`
	Augmented            bool                     `json:"augmented"`
	HybridCitations      []store.HybridCitation   `json:"hybrid_citations"`
	WebSearchCitations   []store.WebCitation      `json:"web_search_citations"`
	KernelFallbackNotice *string                  `json:"kernel_fallback_notice"`
	ImageURL             string                   `json:"image_url,omitempty"`
	TriggeredCategories  []store.CategorySeverity `json:"triggered_categories,omitempty"`
	BlocklistMatches     []store.BlocklistMatch   `json:"blocklist_matches,omitempty"`
}

func newTurnResult(conv *store.Conversation) *TurnResult {
	classification := conv.Classification
	if classification == nil {
		classification = []string{}
	}
	return &TurnResult{
		ConversationID:     conv.ID,
		ConversationTitle:  conv.Title,
		Classification:     classification,
		HybridCitations:    []store.HybridCitation{},
		WebSearchCitations: []store.WebCitation{},
	}
}

func normalizeChatType(t store.ChatType) store.ChatType {
	if t == store.ChatTypeGroup {
		return store.ChatTypeGroup
	}
	return store.ChatTypeUser
}
