package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/search"
	"github.com/hrygo/chatturn/store"
)

// fakeCompletion answers summary prompts with a fixed summary and every other
// call with reply. Requests are recorded.
type fakeCompletion struct {
	mu       sync.Mutex
	reply    string
	summary  string
	err      error
	requests []ai.CompletionRequest
}

func (f *fakeCompletion) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(req.Messages) == 1 && req.Messages[0].Role == ai.RoleSystem && strings.Contains(req.Messages[0].Content, "ummarize") {
		return f.summary, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

// chatRequests returns the non-summary requests.
func (f *fakeCompletion) chatRequests() []ai.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ai.CompletionRequest
	for _, r := range f.requests {
		if len(r.Messages) == 1 && r.Messages[0].Role == ai.RoleSystem {
			continue
		}
		out = append(out, r)
	}
	return out
}

type fakeLister struct {
	messages []*store.Message
	err      error
}

func (f *fakeLister) ListMessages(_ context.Context, find *store.FindMessage) ([]*store.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := append([]*store.Message(nil), f.messages...)
	if find.Order == store.SortDesc {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if find.Limit > 0 && len(out) > find.Limit {
		out = out[:find.Limit]
	}
	return out, nil
}

type fakeSummarizer struct {
	summary string
	err     error
	prompts []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, prompt string, _ int, _ float32) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.summary, f.err
}

type fakeHybrid struct {
	results []*store.ChunkResult
	err     error
	queries []search.Query
}

func (f *fakeHybrid) Search(_ context.Context, q search.Query) ([]*store.ChunkResult, error) {
	f.queries = append(f.queries, q)
	return f.results, f.err
}

type fakeWeb struct {
	results []search.WebResult
	err     error
}

func (f *fakeWeb) Search(context.Context, string) ([]search.WebResult, error) {
	return f.results, f.err
}

type fakeImages struct {
	url    string
	err    error
	models []string
}

func (f *fakeImages) Generate(_ context.Context, model, _ string) (string, error) {
	f.models = append(f.models, model)
	return f.url, f.err
}

var errUnavailable = errors.New("unavailable")

// conversation builds n alternating user/assistant messages.
func conversation(id string, n int) []*store.Message {
	out := make([]*store.Message, 0, n)
	for i := range n {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		out = append(out, &store.Message{
			ID:             id + "_" + string(role),
			ConversationID: id,
			Role:           role,
			Content:        string(role) + " message " + string(rune('a'+i)),
			CreatedTs:      int64(i + 1),
		})
	}
	return out
}
