package chat

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/hrygo/chatturn/plugin/ai"
	"github.com/hrygo/chatturn/plugin/ai/search"
	"github.com/hrygo/chatturn/plugin/ai/timeout"
	chaterrors "github.com/hrygo/chatturn/server/internal/errors"
	"github.com/hrygo/chatturn/server/internal/observability"
	"github.com/hrygo/chatturn/store"
)

const (
	embeddingFailureMessage = "There was an issue with the embedding process. Please check with an admin on embedding configuration."

	searchSummaryPrompt    = "Please summarize the key topics or questions from this recent conversation history in 50 words or less:\n\n"
	searchSummaryMaxTokens = 100

	hybridPromptTemplate = "You are an AI assistant. Use the following retrieved document excerpts to answer the user's question. " +
		"Cite sources using the format (Source: filename, Page: page number).\n\n" +
		"Retrieved Excerpts:\n%s\n\n" +
		"Based *only* on the information provided above, answer the user's query. If the answer isn't in the excerpts, say so.\n\n" +
		"Example\n" +
		"User: What is the policy on double dipping?\n" +
		"Assistant: The policy prohibits entities from using federal funds received through one program to apply for additional funds " +
		"through another program, commonly known as 'double dipping' (Source: PolicyDocument.pdf, Page: 12)"

	webPromptTemplate = "You are an AI assistant. Use the following web search results to answer the user's question. " +
		"Cite sources using the format (Source: page_title).\n\n" +
		"Web Search Results:\n%s\n\n" +
		"Based *only* on the information provided above, answer the user's query. If the answer isn't in the results, say so.\n\n" +
		"Example:\n" +
		"User: What is the capital of France?\n" +
		"Assistant: The capital of France is Paris (Source: OfficialFrancePage)"
)

// Augmentation is what retrieval added to a turn. System messages are not yet persisted.
type Augmentation struct {
	SystemMessages  []ai.Message
	HybridCitations []store.HybridCitation
	WebCitations    []store.WebCitation
	// SearchQuery is the hybrid query, possibly rewritten from recent history.
	SearchQuery string
	// Chunks and WebResults feed the conversation metadata.
	Chunks     []*store.ChunkResult
	WebResults []search.WebResult
	// Classifications are the document labels seen, in first-seen order.
	Classifications []string
}

// Augmented reports whether any system message was produced.
func (a *Augmentation) Augmented() bool {
	return len(a.SystemMessages) > 0
}

// HybridQuery returns the search query when hybrid search produced results.
func (a *Augmentation) HybridQuery() string {
	if len(a.Chunks) == 0 {
		return ""
	}
	return a.SearchQuery
}

type augmentRequest struct {
	UserID         string
	ConversationID string
	Message        string
	Options        TurnOptions
	// HistoryLimit is the even recency window; the query is only rewritten when
	// at least that many messages exist.
	HistoryLimit       int
	SummarizeForSearch bool
	SummarizeCount     int
}

// Augmenter runs hybrid and web retrieval for a turn.
type Augmenter struct {
	hybrid     search.HybridSearch
	web        search.WebSearch
	messages   MessageLister
	summarizer Summarizer
	metrics    *observability.Metrics
}

func NewAugmenter(hybrid search.HybridSearch, web search.WebSearch, messages MessageLister, summarizer Summarizer, metrics *observability.Metrics) *Augmenter {
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	return &Augmenter{
		hybrid:     hybrid,
		web:        web,
		messages:   messages,
		summarizer: summarizer,
		metrics:    metrics,
	}
}

// Augment runs the requested retrievals. A hybrid search failure is returned as
// an EMBEDDING_FAILED error; a web search failure only drops the web results.
func (a *Augmenter) Augment(ctx context.Context, req augmentRequest) (*Augmentation, error) {
	aug := &Augmentation{SearchQuery: req.Message}

	if req.Options.HybridSearch {
		if req.SummarizeForSearch {
			aug.SearchQuery = a.rewriteQuery(ctx, req)
		}
		if err := a.hybridSearch(ctx, req, aug); err != nil {
			return nil, err
		}
	}
	if req.Options.WebSearch {
		a.webSearch(ctx, req, aug)
	}
	return aug, nil
}

// rewriteQuery prefixes the user message with a summary of the latest messages.
func (a *Augmenter) rewriteQuery(ctx context.Context, req augmentRequest) string {
	if a.summarizer == nil || req.SummarizeCount <= 0 {
		return req.Message
	}
	latest, err := a.messages.ListMessages(ctx, &store.FindMessage{
		ConversationID: req.ConversationID,
		Order:          store.SortDesc,
		Limit:          req.SummarizeCount * 2,
	})
	if err != nil {
		turnLogger(ctx, req.UserID, req.ConversationID).Warn("failed to fetch messages for search summarization",
			slog.String("error", err.Error()))
		return req.Message
	}
	if len(latest) == 0 || len(latest) < req.HistoryLimit {
		return req.Message
	}
	slices.Reverse(latest)

	lines := make([]string, 0, len(latest))
	for _, m := range latest {
		lines = append(lines, transcriptLine(m))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.SummarizationTimeout)
	defer cancel()
	summary, err := a.summarizer.Summarize(ctx, searchSummaryPrompt+strings.Join(lines, "\n"), searchSummaryMaxTokens, 0)
	if err != nil {
		turnLogger(ctx, req.UserID, req.ConversationID).Warn("failed to summarize conversation for search",
			slog.String("error", err.Error()))
		return req.Message
	}
	if summary == "" {
		return req.Message
	}
	return fmt.Sprintf("Based on the recent conversation about: '%s', the user is now asking: %s", summary, req.Message)
}

func (a *Augmenter) hybridSearch(ctx context.Context, req augmentRequest, aug *Augmentation) error {
	if a.hybrid == nil {
		a.metrics.RecordAugmentation("hybrid", observability.ResultFailure)
		return chaterrors.Wrap(search.ErrEmbedding, chaterrors.ErrCodeEmbeddingFailed, embeddingFailureMessage)
	}

	q := search.Query{
		Text:       aug.SearchQuery,
		UserID:     req.UserID,
		TopN:       req.Options.TopN.Value(),
		DocScope:   req.Options.DocScope,
		DocumentID: req.Options.SelectedDocumentID,
	}
	if (req.Options.DocScope == store.DocumentScopeGroup || req.Options.ChatType == store.ChatTypeGroup) && req.Options.ActiveGroupID != "" {
		q.ActiveGroupID = req.Options.ActiveGroupID
	}
	if q.TopN != DefaultTopN {
		turnLogger(ctx, req.UserID, req.ConversationID).Debug("using custom top_n", slog.Int("top_n", q.TopN))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout.SearchTimeout)
	defer cancel()
	results, err := a.hybrid.Search(ctx, q)
	if err != nil {
		a.metrics.RecordAugmentation("hybrid", observability.ResultFailure)
		return chaterrors.Wrap(err, chaterrors.ErrCodeEmbeddingFailed, embeddingFailureMessage)
	}
	if len(results) == 0 {
		a.metrics.RecordAugmentation("hybrid", observability.ResultEmpty)
		return nil
	}
	a.metrics.RecordAugmentation("hybrid", observability.ResultSuccess)

	excerpts := make([]string, 0, len(results))
	for _, r := range results {
		chunk := r.Chunk
		page := citationPage(chunk)
		excerpts = append(excerpts, fmt.Sprintf("%s\n(Source: %s, Page: %d) [#%s]", chunk.ChunkText, chunk.FileName, page, chunk.ID))
		aug.HybridCitations = append(aug.HybridCitations, store.HybridCitation{
			FileName:       chunk.FileName,
			CitationID:     chunk.ID,
			PageNumber:     page,
			ChunkID:        chunk.ID,
			ChunkSequence:  chunk.ChunkSequence,
			Score:          r.Score,
			GroupID:        chunk.GroupID,
			Version:        chunk.Version,
			Classification: chunk.Classification,
		})
		if chunk.Classification != "" && !slices.Contains(aug.Classifications, chunk.Classification) {
			aug.Classifications = append(aug.Classifications, chunk.Classification)
		}
	}
	SortCitations(aug.HybridCitations)

	aug.Chunks = results
	aug.SystemMessages = append(aug.SystemMessages, ai.SystemPrompt(fmt.Sprintf(hybridPromptTemplate, strings.Join(excerpts, "\n\n"))))
	return nil
}

func (a *Augmenter) webSearch(ctx context.Context, req augmentRequest, aug *Augmentation) {
	if a.web == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, timeout.SearchTimeout)
	defer cancel()
	results, err := a.web.Search(ctx, req.Message)
	if err != nil {
		a.metrics.RecordAugmentation("web", observability.ResultFailure)
		turnLogger(ctx, req.UserID, req.ConversationID).Warn("web search failed, continuing without web results",
			slog.String("error", err.Error()))
		return
	}
	if len(results) == 0 {
		a.metrics.RecordAugmentation("web", observability.ResultEmpty)
		return
	}
	a.metrics.RecordAugmentation("web", observability.ResultSuccess)

	snippets := make([]string, 0, len(results))
	for _, r := range results {
		title := valueOr(r.Name, "Untitled")
		snippet := valueOr(r.Snippet, "No snippet available.")
		url := valueOr(r.URL, "#")
		snippets = append(snippets, fmt.Sprintf("%s\n(Source: %s) [%s]", snippet, title, url))
		aug.WebCitations = append(aug.WebCitations, store.WebCitation{Title: title, URL: url, Snippet: snippet})
	}
	aug.WebResults = results
	aug.SystemMessages = append(aug.SystemMessages, ai.SystemPrompt(fmt.Sprintf(webPromptTemplate, strings.Join(snippets, "\n\n"))))
}

// citationPage is the page number, else the chunk sequence, else 1.
func citationPage(chunk *store.DocumentChunk) int {
	if chunk.PageNumber > 0 {
		return chunk.PageNumber
	}
	if chunk.ChunkSequence > 0 {
		return chunk.ChunkSequence
	}
	return 1
}

// SortCitations orders citations by page number, highest first.
func SortCitations(citations []store.HybridCitation) {
	sort.SliceStable(citations, func(i, j int) bool {
		return citations[i].PageNumber > citations[j].PageNumber
	})
}

// mergeClassifications appends labels not yet present.
func mergeClassifications(existing, labels []string) []string {
	out := append([]string(nil), existing...)
	for _, l := range labels {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
