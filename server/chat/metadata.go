package chat

import (
	"context"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/hrygo/chatturn/plugin/ai/search"
	"github.com/hrygo/chatturn/store"
)

const (
	unknownUser      = "Unknown User"
	unknownGroup     = "Unknown Group"
	unknownWorkspace = "Unknown Workspace"
	unknownDocument  = "Unknown Document"
	personalName     = "Personal"
	pendingLabel     = "Pending"

	maxSemanticKeywords = 5
)

// NameResolver looks up display names for contexts and tags.
// Lookups that find nothing return ok=false and the collector uses a default.
type NameResolver interface {
	UserInfo(ctx context.Context, userID string) (name, email string, ok bool)
	GroupName(ctx context.Context, groupID string) (string, bool)
	WorkspaceName(ctx context.Context, workspaceID string) (string, bool)
}

// TurnContext is what one turn contributes to the conversation metadata.
type TurnContext struct {
	UserID        string
	ActiveGroupID string
	Message       string
	Model         string
	Agent         string
	Chunks        []*store.ChunkResult
	WebResults    []search.WebResult
}

// MetadataCollector maintains the context entries and tags of a conversation.
type MetadataCollector struct {
	names NameResolver
}

func NewMetadataCollector(names NameResolver) *MetadataCollector {
	if names == nil {
		names = noNames{}
	}
	return &MetadataCollector{names: names}
}

// Update returns a copy of conv with the turn folded in. There is exactly one
// primary context, and tags stay unique by (category, key): a document already
// tagged only gains the new chunk ids.
func (c *MetadataCollector) Update(ctx context.Context, conv *store.Conversation, turn TurnContext) *store.Conversation {
	out := conv.Clone()

	primary := c.primaryContext(ctx, turn)
	out.Context = setPrimary(out.Context, primary)

	tags := newTagSet(out.Tags)
	if turn.Agent != "" {
		tags.add(store.Tag{Category: store.TagCategoryAgent, Value: turn.Agent})
	}
	if turn.Model != "" {
		tags.add(store.Tag{Category: store.TagCategoryModel, Value: turn.Model})
	}
	if !tags.has(store.TagKey{Category: store.TagCategoryParticipant, Key: turn.UserID}) {
		name, email, ok := c.names.UserInfo(ctx, turn.UserID)
		if !ok {
			name, email = unknownUser, ""
		}
		tags.add(store.Tag{Category: store.TagCategoryParticipant, UserID: turn.UserID, Name: name, Email: email})
	}

	docs, secondary := groupChunks(turn, primary)
	out.Context = c.addSecondary(ctx, out.Context, secondary)
	for _, d := range docs {
		key := store.TagKey{Category: store.TagCategoryDocument, Key: d.id}
		if existing := tags.get(key); existing != nil {
			for _, id := range d.chunkIDs {
				if !slices.Contains(existing.ChunkIDs, id) {
					existing.ChunkIDs = append(existing.ChunkIDs, id)
				}
			}
			if existing.Title == "" {
				existing.Title = d.title
			}
			if existing.Scope != nil && existing.Scope.Name == "" {
				existing.Scope.Name = c.documentScopeName(ctx, existing.Scope.Type, existing.Scope.ID)
			}
			continue
		}
		tags.add(store.Tag{
			Category:   store.TagCategoryDocument,
			DocumentID: d.id,
			Title:      d.title,
			Scope: &store.TagScope{
				Type: d.scope,
				ID:   d.scopeID,
				Name: c.documentScopeName(ctx, d.scope, d.scopeID),
			},
			ChunkIDs:       d.chunkIDs,
			Classification: d.classification,
		})
	}

	for _, r := range turn.WebResults {
		if r.URL != "" {
			tags.add(store.Tag{Category: store.TagCategoryWeb, Value: r.URL})
		}
	}
	for _, kw := range SemanticKeywords(turn.Message, maxSemanticKeywords) {
		tags.add(store.Tag{Category: store.TagCategorySemantic, Value: kw})
	}

	out.Tags = tags.list()
	return out
}

func (c *MetadataCollector) primaryContext(ctx context.Context, turn TurnContext) store.ContextEntry {
	if turn.ActiveGroupID != "" {
		name, ok := c.names.GroupName(ctx, turn.ActiveGroupID)
		if !ok {
			name = unknownGroup
		}
		return store.ContextEntry{Type: store.ContextTypePrimary, Scope: store.ScopeGroup, ID: turn.ActiveGroupID, Name: name}
	}
	name, _, ok := c.names.UserInfo(ctx, turn.UserID)
	if !ok || name == "" {
		name = personalName
	}
	return store.ContextEntry{Type: store.ContextTypePrimary, Scope: store.ScopePersonal, ID: turn.UserID, Name: name}
}

func setPrimary(entries []store.ContextEntry, primary store.ContextEntry) []store.ContextEntry {
	for i := range entries {
		if entries[i].Type == store.ContextTypePrimary {
			entries[i] = primary
			return entries
		}
	}
	return append(entries, primary)
}

func (c *MetadataCollector) addSecondary(ctx context.Context, entries []store.ContextEntry, scopes []scopeRef) []store.ContextEntry {
	existing := make(map[string]bool)
	for _, e := range entries {
		if e.Type == store.ContextTypeSecondary {
			existing[e.ID] = true
		}
	}
	for _, s := range scopes {
		if existing[s.id] {
			continue
		}
		existing[s.id] = true
		entries = append(entries, store.ContextEntry{
			Type:  store.ContextTypeSecondary,
			Scope: s.scope,
			ID:    s.id,
			Name:  c.secondaryName(ctx, s.scope, s.id),
		})
	}
	return entries
}

func (c *MetadataCollector) secondaryName(ctx context.Context, scope, id string) string {
	switch scope {
	case store.ScopeGroup:
		if name, ok := c.names.GroupName(ctx, id); ok {
			return name
		}
		return unknownGroup
	case store.ScopePublic:
		if name, ok := c.names.WorkspaceName(ctx, id); ok {
			return name
		}
		return unknownWorkspace
	default:
		if name, _, ok := c.names.UserInfo(ctx, id); ok {
			return name
		}
		return unknownUser
	}
}

func (c *MetadataCollector) documentScopeName(ctx context.Context, scope, id string) string {
	if scope == store.ScopePersonal {
		if name, _, ok := c.names.UserInfo(ctx, id); ok {
			return name
		}
		return personalName
	}
	return c.secondaryName(ctx, scope, id)
}

type scopeRef struct {
	scope string
	id    string
}

type documentRef struct {
	id             string
	title          string
	scope          string
	scopeID        string
	classification string
	chunkIDs       []string
}

// groupChunks consolidates chunks by document and lists the scopes, other than
// the primary one, that the documents came from. Both keep first-seen order.
func groupChunks(turn TurnContext, primary store.ContextEntry) ([]*documentRef, []scopeRef) {
	var (
		docs      []*documentRef
		byID      = make(map[string]*documentRef)
		secondary []scopeRef
	)
	for _, r := range turn.Chunks {
		chunk := r.Chunk
		if chunk == nil || chunk.ID == "" {
			continue
		}
		scope := chunkScope(chunk, turn.UserID)
		docID := DocumentIDFromChunk(chunk)

		d, ok := byID[docID]
		if !ok {
			d = &documentRef{
				id:             docID,
				title:          valueOr(chunk.FileName, unknownDocument),
				scope:          scope.scope,
				scopeID:        scope.id,
				classification: valueOr(chunk.Classification, pendingLabel),
			}
			byID[docID] = d
			docs = append(docs, d)
		}
		if !slices.Contains(d.chunkIDs, chunk.ID) {
			d.chunkIDs = append(d.chunkIDs, chunk.ID)
		}

		if (scope.scope != primary.Scope || scope.id != primary.ID) && !slices.Contains(secondary, scope) {
			secondary = append(secondary, scope)
		}
	}
	return docs, secondary
}

// chunkScope is public, then group, then personal.
func chunkScope(chunk *store.DocumentChunk, userID string) scopeRef {
	switch {
	case chunk.PublicWorkspaceID != "":
		return scopeRef{scope: store.ScopePublic, id: chunk.PublicWorkspaceID}
	case chunk.GroupID != "":
		return scopeRef{scope: store.ScopeGroup, id: chunk.GroupID}
	default:
		return scopeRef{scope: store.ScopePersonal, id: valueOr(chunk.UserID, userID)}
	}
}

// DocumentIDFromChunk returns the chunk's document id. Chunks without one are
// assumed to be named "{document}_{sequence}".
func DocumentIDFromChunk(chunk *store.DocumentChunk) string {
	if chunk.DocumentID != "" {
		return chunk.DocumentID
	}
	if i := strings.LastIndex(chunk.ID, "_"); i >= 0 {
		return chunk.ID[:i]
	}
	return chunk.ID
}

var (
	wordPattern = regexp.MustCompile(`\b[a-z]+\b`)

	commonWords = map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true, "on": true,
		"at": true, "to": true, "for": true, "of": true, "with": true, "by": true, "this": true, "that": true,
		"these": true, "those": true, "i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
		"they": true, "me": true, "him": true, "her": true, "us": true, "them": true, "my": true, "your": true,
		"his": true, "hers": true, "its": true, "our": true, "their": true, "am": true, "is": true, "are": true,
		"was": true, "were": true, "be": true, "been": true, "being": true, "have": true, "has": true, "had": true,
		"do": true, "does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
		"may": true, "might": true, "can": true, "what": true, "where": true, "when": true, "why": true,
		"how": true, "who": true, "which": true, "there": true, "here": true, "then": true, "now": true,
		"if": true, "so": true, "than": true, "very": true, "just": true, "only": true, "also": true,
		"even": true, "still": true, "much": true, "many": true, "some": true, "any": true, "all": true,
		"each": true, "every": true, "no": true, "not": true,
	}
)

// SemanticKeywords returns up to limit of the most frequent words longer than
// three letters that are not common words. Ties keep first-appearance order.
func SemanticKeywords(message string, limit int) []string {
	counts := make(map[string]int)
	var order []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(message), -1) {
		if len(w) <= 3 || commonWords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

// tagSet keeps tags unique by key in insertion order.
type tagSet struct {
	tags  []*store.Tag
	index map[store.TagKey]*store.Tag
}

func newTagSet(existing []store.Tag) *tagSet {
	s := &tagSet{index: make(map[store.TagKey]*store.Tag, len(existing))}
	for _, t := range existing {
		s.add(t)
	}
	return s
}

// add keeps the first tag seen for a key.
func (s *tagSet) add(t store.Tag) {
	key := t.Key()
	if _, ok := s.index[key]; ok {
		return
	}
	tag := t
	s.index[key] = &tag
	s.tags = append(s.tags, &tag)
}

func (s *tagSet) has(key store.TagKey) bool {
	_, ok := s.index[key]
	return ok
}

func (s *tagSet) get(key store.TagKey) *store.Tag {
	return s.index[key]
}

func (s *tagSet) list() []store.Tag {
	out := make([]store.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, *t)
	}
	return out
}

type noNames struct{}

func (noNames) UserInfo(context.Context, string) (string, string, bool) { return "", "", false }
func (noNames) GroupName(context.Context, string) (string, bool)        { return "", false }
func (noNames) WorkspaceName(context.Context, string) (string, bool)    { return "", false }

// StoreNames resolves user names from stored user settings. Groups and public
// workspaces resolve from the given maps.
type StoreNames struct {
	Users interface {
		GetUserSettings(ctx context.Context, userID string) (*store.UserSettings, error)
	}
	Groups     map[string]string
	Workspaces map[string]string
}

func (n StoreNames) UserInfo(ctx context.Context, userID string) (string, string, bool) {
	if n.Users == nil || userID == "" {
		return "", "", false
	}
	s, err := n.Users.GetUserSettings(ctx, userID)
	if err != nil || s == nil || s.DisplayName == "" {
		return "", "", false
	}
	return s.DisplayName, s.Email, true
}

func (n StoreNames) GroupName(_ context.Context, groupID string) (string, bool) {
	name, ok := n.Groups[groupID]
	return name, ok && name != ""
}

func (n StoreNames) WorkspaceName(_ context.Context, workspaceID string) (string, bool) {
	name, ok := n.Workspaces[workspaceID]
	return name, ok && name != ""
}
