package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/timeout"
	"github.com/hrygo/chatturn/server/internal/observability"
	"github.com/hrygo/chatturn/store"
)

const (
	summaryOpenTag  = "<Summary of previous conversation context>"
	summaryCloseTag = "</Summary of previous conversation context>"

	olderHistoryPrompt = "Summarize the following conversation history concisely (around 50-100 words), " +
		"focusing on key facts, decisions, or context that might be relevant for future turns. " +
		"Do not add any introductory phrases like 'Here is a summary'.\n\n" +
		"Conversation History:\n"

	summaryMaxTokens   = 150
	summaryTemperature = 0.3

	filePreviewMaxRunes = 1000
)

// MessageLister reads the messages of a conversation.
type MessageLister interface {
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
}

// Summarizer condenses a prompt into a short text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error)
}

// completionSummarizer summarizes with the turn's completion model.
type completionSummarizer struct {
	client ai.CompletionClient
	model  string
}

func (s completionSummarizer) Summarize(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	return ai.Summarize(ctx, s.client, s.model, prompt, maxTokens, temperature)
}

// History is the model-facing view of a conversation.
type History struct {
	// Summary is the wrapped summary of the older messages, or "".
	Summary string
	// Recent holds the last messages mapped for the model, ending with the user turn.
	Recent []ai.Message
	// Total is the number of stored messages.
	Total int
}

// HistoryAssembler splits a conversation into a verbatim recent window and an
// older prefix that is summarized on demand.
type HistoryAssembler struct {
	messages   MessageLister
	summarizer Summarizer
}

func NewHistoryAssembler(messages MessageLister, summarizer Summarizer) *HistoryAssembler {
	return &HistoryAssembler{messages: messages, summarizer: summarizer}
}

// Assemble loads the whole conversation and keeps the last limit messages. When
// summarize is set, the messages before the window are summarized; a failed
// summary is logged and skipped. userMessage is appended if the window does not
// end with a user message.
func (a *HistoryAssembler) Assemble(ctx context.Context, conversationID, userMessage string, limit int, summarize bool) (*History, error) {
	all, err := a.messages.ListMessages(ctx, &store.FindMessage{
		ConversationID: conversationID,
		Order:          store.SortAsc,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation messages")
	}

	recentCount := min(len(all), max(limit, 0))
	older, recent := all[:len(all)-recentCount], all[len(all)-recentCount:]

	history := &History{Total: len(all)}
	if summarize && len(older) > 0 && a.summarizer != nil {
		history.Summary = a.summarizeOlder(ctx, conversationID, older)
	}

	history.Recent = make([]ai.Message, 0, len(recent)+1)
	for _, m := range recent {
		if msg, ok := toModelMessage(m); ok {
			history.Recent = append(history.Recent, msg)
		}
	}
	if n := len(history.Recent); n == 0 || history.Recent[n-1].Role != ai.RoleUser {
		turnLogger(ctx, "", conversationID).Warn("last history message is not the user turn, appending it")
		history.Recent = append(history.Recent, ai.UserMessage(userMessage))
	}
	return history, nil
}

func (a *HistoryAssembler) summarizeOlder(ctx context.Context, conversationID string, older []*store.Message) string {
	lines := make([]string, 0, len(older))
	for _, m := range older {
		switch m.Role {
		case store.RoleSystem, store.RoleSafety, store.RoleBlocked, store.RoleImage, store.RoleFile:
			continue
		}
		lines = append(lines, transcriptLine(m))
	}
	if len(lines) == 0 {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.SummarizationTimeout)
	defer cancel()
	summary, err := a.summarizer.Summarize(ctx, olderHistoryPrompt+strings.Join(lines, "\n"), summaryMaxTokens, summaryTemperature)
	if err != nil {
		turnLogger(ctx, "", conversationID).Warn("failed to summarize older conversation history",
			slog.Int("older_messages", len(older)),
			slog.String("error", err.Error()))
		return ""
	}
	if summary == "" {
		return ""
	}
	return summaryOpenTag + "\n" + summary + "\n" + summaryCloseTag
}

// turnLogger returns the request logger of ctx, or a fresh one for the conversation.
func turnLogger(ctx context.Context, userID, conversationID string) *observability.RequestContext {
	if reqCtx, ok := observability.FromContext(ctx); ok {
		return reqCtx
	}
	reqCtx := observability.NewRequestContext(slog.Default(), userID)
	reqCtx.SetConversation(conversationID)
	return reqCtx
}

// toModelMessage maps a stored message into the model history. Files become a
// system note with a bounded preview; image, safety, blocked and system messages
// are left out.
func toModelMessage(m *store.Message) (ai.Message, bool) {
	switch m.Role {
	case store.RoleUser, store.RoleAssistant:
		return ai.Message{Role: string(m.Role), Content: m.Content}, true
	case store.RoleFile:
		filename := m.Extra.Filename
		if filename == "" {
			filename = "uploaded_file"
		}
		preview := m.Extra.FileContent
		if runes := []rune(preview); len(runes) > filePreviewMaxRunes {
			preview = string(runes[:filePreviewMaxRunes]) + "..."
		}
		return ai.SystemPrompt(fmt.Sprintf(
			"[User uploaded a file named '%s'. Content preview:\n%s]\nUse this file context if relevant.",
			filename, preview)), true
	default:
		return ai.Message{}, false
	}
}

func transcriptLine(m *store.Message) string {
	role := string(m.Role)
	if role == "" {
		role = string(store.RoleUser)
	}
	return strings.ToUpper(role) + ": " + m.Content
}
