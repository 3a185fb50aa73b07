package chat

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/store"
)

// Scope types of the fact memory and metadata blocks.
const (
	scopeTypeUser  = "user"
	scopeTypeGroup = "group"
)

// promptParts are the pieces of the model history, in output order.
type promptParts struct {
	Facts               string
	Metadata            string
	Summary             string
	DefaultSystemPrompt string
	Augmentations       []ai.Message
	Recent              []ai.Message
}

// Messages assembles the final history: fact memory, conversation metadata,
// summary, default system prompt, augmentations, then the recent window. The
// default system prompt is only added when no general system message exists.
func (p promptParts) Messages() []ai.Message {
	body := make([]ai.Message, 0, len(p.Augmentations)+len(p.Recent)+5)
	if p.Summary != "" {
		body = append(body, ai.SystemPrompt(p.Summary))
	}
	body = append(body, p.Augmentations...)
	body = append(body, p.Recent...)

	if prompt := strings.TrimSpace(p.DefaultSystemPrompt); prompt != "" && !hasGeneralSystemPrompt(body) {
		at := 0
		if p.Summary != "" {
			at = 1
		}
		body = slices.Insert(body, at, ai.SystemPrompt(prompt))
	}

	out := make([]ai.Message, 0, len(body)+2)
	if p.Facts != "" {
		out = append(out, ai.SystemPrompt(p.Facts))
	}
	if p.Metadata != "" {
		out = append(out, ai.SystemPrompt(p.Metadata))
	}
	return append(out, body...)
}

// hasGeneralSystemPrompt reports whether a system message other than a summary
// or a retrieval augmentation is present.
func hasGeneralSystemPrompt(messages []ai.Message) bool {
	for _, m := range messages {
		if m.Role != ai.RoleSystem {
			continue
		}
		if strings.HasPrefix(m.Content, summaryOpenTag) ||
			strings.Contains(m.Content, "retrieved document excerpts") ||
			strings.Contains(m.Content, "web search results") {
			continue
		}
		return true
	}
	return false
}

// factsBlock renders the fact memory block, or "" when there are no facts.
func factsBlock(facts []*store.Fact, agentID, scopeType, scopeID, conversationID string) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<Fact Memory>\n")
	for _, f := range facts {
		if f.Value != "" {
			fmt.Fprintf(&b, "- %s\n", f.Value)
		}
	}
	fmt.Fprintf(&b, "- agent_id: %s\n- scope_type: %s\n- scope_id: %s\n- conversation_id: %s\n", agentID, scopeType, scopeID, conversationID)
	b.WriteString("</Fact Memory>")
	return b.String()
}

func metadataBlock(scopeID, scopeType, conversationID, agentID string) string {
	return fmt.Sprintf("<Conversation Metadata>\n<Scope ID: %s>\n<Scope Type: %s>\n<Conversation ID: %s>\n<Agent ID: %s>\n</Conversation Metadata>",
		scopeID, scopeType, conversationID, agentID)
}
