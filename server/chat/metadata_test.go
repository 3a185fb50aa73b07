package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/plugin/ai/search"
	"github.com/hrygo/chatturn/store"
)

type mapNames struct {
	users      map[string][2]string
	groups     map[string]string
	workspaces map[string]string
}

func (m mapNames) UserInfo(_ context.Context, id string) (string, string, bool) {
	u, ok := m.users[id]
	return u[0], u[1], ok
}

func (m mapNames) GroupName(_ context.Context, id string) (string, bool) {
	n, ok := m.groups[id]
	return n, ok
}

func (m mapNames) WorkspaceName(_ context.Context, id string) (string, bool) {
	n, ok := m.workspaces[id]
	return n, ok
}

var testNames = mapNames{
	users:      map[string][2]string{"u1": {"Ada", "ada@example.com"}},
	groups:     map[string]string{"g1": "Finance"},
	workspaces: map[string]string{"w1": "Handbook"},
}

func chunkIn(id string, mutate func(c *store.DocumentChunk)) *store.ChunkResult {
	c := &store.DocumentChunk{ID: id, FileName: "policy.pdf", Classification: "Public"}
	if mutate != nil {
		mutate(c)
	}
	return &store.ChunkResult{Chunk: c}
}

func tagsOf(conv *store.Conversation, category string) []store.Tag {
	var out []store.Tag
	for _, t := range conv.Tags {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

func TestCollector_IdempotentTags(t *testing.T) {
	c := NewMetadataCollector(testNames)
	turn := TurnContext{
		UserID:  "u1",
		Message: "Explain the refund policy for refund requests",
		Model:   "gpt-4o",
		Agent:   "researcher",
		Chunks:  []*store.ChunkResult{chunkIn("doc1_1", nil), chunkIn("doc1_2", nil)},
		WebResults: []search.WebResult{
			{URL: "https://example.com/a"},
		},
	}
	conv := &store.Conversation{ID: "c1", UserID: "u1"}

	once := c.Update(context.Background(), conv, turn)
	twice := c.Update(context.Background(), once, turn)

	assert.Equal(t, once.Tags, twice.Tags)
	assert.Equal(t, once.Context, twice.Context)
	assert.Empty(t, conv.Tags, "input conversation is not modified")

	seen := map[store.TagKey]bool{}
	for _, tag := range twice.Tags {
		require.False(t, seen[tag.Key()], "duplicate tag %v", tag.Key())
		seen[tag.Key()] = true
	}

	participants := tagsOf(once, store.TagCategoryParticipant)
	require.Len(t, participants, 1)
	assert.Equal(t, "Ada", participants[0].Name)
	assert.Equal(t, "ada@example.com", participants[0].Email)

	docs := tagsOf(once, store.TagCategoryDocument)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc1", docs[0].DocumentID)
	assert.Equal(t, []string{"doc1_1", "doc1_2"}, docs[0].ChunkIDs)
	assert.Equal(t, &store.TagScope{Type: store.ScopePersonal, ID: "u1", Name: "Ada"}, docs[0].Scope)

	order := make([]string, 0, len(once.Tags))
	for _, tag := range once.Tags {
		order = append(order, tag.Category)
	}
	assert.Equal(t, []string{
		store.TagCategoryAgent, store.TagCategoryModel, store.TagCategoryParticipant,
		store.TagCategoryDocument, store.TagCategoryWeb,
		store.TagCategorySemantic, store.TagCategorySemantic, store.TagCategorySemantic, store.TagCategorySemantic,
	}, order)
}

func TestCollector_NewChunkExtendsDocumentTag(t *testing.T) {
	c := NewMetadataCollector(testNames)
	conv := c.Update(context.Background(), &store.Conversation{ID: "c1"}, TurnContext{
		UserID: "u1",
		Chunks: []*store.ChunkResult{chunkIn("doc1_1", nil)},
	})
	conv = c.Update(context.Background(), conv, TurnContext{
		UserID: "u1",
		Chunks: []*store.ChunkResult{chunkIn("doc1_1", nil), chunkIn("doc1_7", nil)},
	})

	docs := tagsOf(conv, store.TagCategoryDocument)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"doc1_1", "doc1_7"}, docs[0].ChunkIDs)
}

func TestCollector_Contexts(t *testing.T) {
	c := NewMetadataCollector(testNames)
	conv := c.Update(context.Background(), &store.Conversation{ID: "c1"}, TurnContext{
		UserID:        "u1",
		ActiveGroupID: "g1",
		Chunks: []*store.ChunkResult{
			chunkIn("g_1", func(d *store.DocumentChunk) { d.GroupID = "g1" }),
			chunkIn("pub_1", func(d *store.DocumentChunk) { d.PublicWorkspaceID = "w1"; d.GroupID = "g1" }),
			chunkIn("pub2_1", func(d *store.DocumentChunk) { d.PublicWorkspaceID = "w9" }),
			chunkIn("mine_1", func(d *store.DocumentChunk) { d.UserID = "u1"; d.FileName = ""; d.Classification = "" }),
		},
	})

	assert.Equal(t, []store.ContextEntry{
		{Type: store.ContextTypePrimary, Scope: store.ScopeGroup, ID: "g1", Name: "Finance"},
		{Type: store.ContextTypeSecondary, Scope: store.ScopePublic, ID: "w1", Name: "Handbook"},
		{Type: store.ContextTypeSecondary, Scope: store.ScopePublic, ID: "w9", Name: "Unknown Workspace"},
		{Type: store.ContextTypeSecondary, Scope: store.ScopePersonal, ID: "u1", Name: "Ada"},
	}, conv.Context)

	docs := tagsOf(conv, store.TagCategoryDocument)
	require.Len(t, docs, 4)
	assert.Equal(t, "Unknown Document", docs[3].Title)
	assert.Equal(t, "Pending", docs[3].Classification)

	// Switching to a personal turn replaces the primary context in place.
	conv = c.Update(context.Background(), conv, TurnContext{UserID: "u2"})
	assert.Equal(t, store.ContextEntry{Type: store.ContextTypePrimary, Scope: store.ScopePersonal, ID: "u2", Name: "Personal"}, conv.Context[0])
	assert.Len(t, conv.Context, 4)

	participants := tagsOf(conv, store.TagCategoryParticipant)
	require.Len(t, participants, 2)
	assert.Equal(t, "Unknown User", participants[1].Name)
	assert.Empty(t, participants[1].Email)
}

func TestCollector_KeepsExistingTagsFirst(t *testing.T) {
	conv := &store.Conversation{ID: "c1", Tags: []store.Tag{
		{Category: store.TagCategorySemantic, Value: "budget"},
		{Category: store.TagCategorySemantic, Value: "budget"},
		{Category: store.TagCategoryModel, Value: "gpt-4o"},
	}}
	out := NewMetadataCollector(nil).Update(context.Background(), conv, TurnContext{
		UserID:  "u1",
		Model:   "gpt-4o",
		Message: "budget",
	})
	require.GreaterOrEqual(t, len(out.Tags), 3)
	assert.Equal(t, store.Tag{Category: store.TagCategorySemantic, Value: "budget"}, out.Tags[0])
	assert.Equal(t, store.Tag{Category: store.TagCategoryModel, Value: "gpt-4o"}, out.Tags[1])
	assert.Len(t, out.Tags, 3)
}

func TestDocumentIDFromChunk(t *testing.T) {
	assert.Equal(t, "explicit", DocumentIDFromChunk(&store.DocumentChunk{ID: "a_b_3", DocumentID: "explicit"}))
	assert.Equal(t, "a_b", DocumentIDFromChunk(&store.DocumentChunk{ID: "a_b_3"}))
	assert.Equal(t, "plain", DocumentIDFromChunk(&store.DocumentChunk{ID: "plain"}))
}

func TestSemanticKeywords(t *testing.T) {
	got := SemanticKeywords("Budget review: the budget forecast and the quarterly budget review. Forecast risks, hiring plans, travel.", 5)
	assert.Equal(t, []string{"budget", "review", "forecast", "quarterly", "risks"}, got)

	assert.Empty(t, SemanticKeywords("what is this and how can we", 5))
	assert.Len(t, SemanticKeywords("alpha bravo charlie delta echoes foxtrot", 3), 3)
}
