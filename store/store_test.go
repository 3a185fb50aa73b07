package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/chatturn/internal/profile"
	"github.com/hrygo/chatturn/store"
	"github.com/hrygo/chatturn/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	driver, err := sqlite.NewDB(&profile.Profile{Mode: "dev", Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	ts := store.New(driver, &profile.Profile{Mode: "dev"}, nil)
	require.NoError(t, ts.Migrate(ctx))
	t.Cleanup(func() { _ = ts.Close() })
	return ts
}

func TestConversationUpsert(t *testing.T) {
	ctx := context.Background()
	ts := newTestStore(t)

	_, err := ts.GetConversation(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	conv := &store.Conversation{
		ID:            "c1",
		UserID:        "u1",
		ChatType:      store.ChatTypeUser,
		Title:         store.DefaultConversationTitle,
		LastUpdatedTs: 100,
		Tags: []store.Tag{
			{Category: store.TagCategorySemantic, Value: "budget"},
		},
	}
	_, err = ts.UpsertConversation(ctx, conv)
	require.NoError(t, err)

	conv.Title = "Quarterly budget"
	conv.LastUpdatedTs = 200
	_, err = ts.UpsertConversation(ctx, conv)
	require.NoError(t, err)

	got, err := ts.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly budget", got.Title)
	assert.Equal(t, int64(200), got.LastUpdatedTs)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, "budget", got.Tags[0].Value)
}

func TestMessageOrdering(t *testing.T) {
	ctx := context.Background()
	ts := newTestStore(t)

	for i, ts0 := range []int64{30, 10, 20} {
		_, err := ts.CreateMessage(ctx, &store.Message{
			ID:             string(rune('a' + i)),
			ConversationID: "c1",
			Role:           store.RoleUser,
			Content:        "hello",
			CreatedTs:      ts0,
		})
		require.NoError(t, err)
	}
	_, err := ts.CreateMessage(ctx, &store.Message{ID: "other", ConversationID: "c2", Role: store.RoleUser, CreatedTs: 1})
	require.NoError(t, err)

	asc, err := ts.ListMessages(ctx, &store.FindMessage{ConversationID: "c1", Order: store.SortAsc})
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{asc[0].ID, asc[1].ID, asc[2].ID})

	desc, err := ts.ListMessages(ctx, &store.FindMessage{ConversationID: "c1", Order: store.SortDesc, Limit: 2})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, "a", desc[0].ID)
	assert.Equal(t, "c", desc[1].ID)
}

func TestMessageExtraRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := newTestStore(t)

	_, err := ts.CreateMessage(ctx, &store.Message{
		ID:             "m1",
		ConversationID: "c1",
		Role:           store.RoleAssistant,
		Content:        "answer",
		CreatedTs:      1,
		Extra: store.MessageExtra{
			Augmented:         true,
			HybridSearchQuery: "q",
			HybridCitations:   []store.HybridCitation{{FileName: "a.pdf", ChunkID: "doc_1", Score: 0.5}},
		},
		Metadata: map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	list, err := ts.ListMessages(ctx, &store.FindMessage{ConversationID: "c1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Extra.Augmented)
	assert.Equal(t, "q", list[0].Extra.HybridSearchQuery)
	require.Len(t, list[0].Extra.HybridCitations, 1)
	assert.Equal(t, "doc_1", list[0].Extra.HybridCitations[0].ChunkID)
	assert.Equal(t, "v", list[0].Metadata["k"])
}

func TestFacts(t *testing.T) {
	ctx := context.Background()
	ts := newTestStore(t)

	for _, f := range []*store.Fact{
		{ID: "f1", AgentID: "a1", ScopeType: "user", ScopeID: "u1", Value: "likes tea", CreatedTs: 1},
		{ID: "f2", AgentID: "a1", ScopeType: "group", ScopeID: "g1", Value: "team of five", CreatedTs: 2},
		{ID: "f3", AgentID: "a2", ScopeType: "user", ScopeID: "u1", Value: "other agent", CreatedTs: 3},
	} {
		_, err := ts.CreateFact(ctx, f)
		require.NoError(t, err)
	}

	agentID, scopeType, scopeID := "a1", "user", "u1"
	facts, err := ts.ListFacts(ctx, &store.FindFact{AgentID: &agentID, ScopeType: &scopeType, ScopeID: &scopeID})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "likes tea", facts[0].Value)

	require.NoError(t, ts.DeleteFact(ctx, &store.DeleteFact{ID: "f1", AgentID: "a1"}))
	require.ErrorIs(t, ts.DeleteFact(ctx, &store.DeleteFact{ID: "f1", AgentID: "a1"}), store.ErrNotFound)
}

func TestSafetyLogs(t *testing.T) {
	ctx := context.Background()
	ts := newTestStore(t)

	_, err := ts.CreateSafetyLog(ctx, &store.SafetyLog{
		ID:                  "s1",
		UserID:              "u1",
		ConversationID:      "c1",
		Message:             "bad",
		TriggeredCategories: []store.CategorySeverity{{Category: "Hate", Severity: 4}},
		Reason:              "Max severity >= 4",
		CreatedTs:           1,
	})
	require.NoError(t, err)

	convID := "c1"
	logs, err := ts.ListSafetyLogs(ctx, &store.FindSafetyLog{ConversationID: &convID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 4, logs[0].TriggeredCategories[0].Severity)
}

func TestDocumentChunkSearch(t *testing.T) {
	ctx := context.Background()
	ts := newTestStore(t)

	chunks := []*store.DocumentChunk{
		{ID: "d1_1", DocumentID: "d1", UserID: "u1", FileName: "mine.pdf", ChunkText: "solar panel efficiency", Embedding: []float32{1, 0}},
		{ID: "d2_1", DocumentID: "d2", GroupID: "g1", FileName: "group.pdf", ChunkText: "wind turbine output", Embedding: []float32{0, 1}},
		{ID: "d3_1", DocumentID: "d3", UserID: "u2", FileName: "theirs.pdf", ChunkText: "solar farm", Embedding: []float32{1, 0}},
		{ID: "d4_1", DocumentID: "d4", PublicWorkspaceID: "w1", FileName: "public.pdf", ChunkText: "solar policy", Embedding: []float32{0.7, 0.7}},
	}
	for _, c := range chunks {
		_, err := ts.UpsertDocumentChunk(ctx, c)
		require.NoError(t, err)
	}

	t.Run("personal vector", func(t *testing.T) {
		results, err := ts.SearchChunksByVector(ctx, &store.FindDocumentChunk{UserID: "u1", Scope: store.DocumentScopePersonal, Limit: 10}, []float32{1, 0})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "d1_1", results[0].Chunk.ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("group without active group sees nothing", func(t *testing.T) {
		results, err := ts.SearchChunksByVector(ctx, &store.FindDocumentChunk{UserID: "u1", Scope: store.DocumentScopeGroup, Limit: 10}, []float32{1, 0})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("all scope keyword", func(t *testing.T) {
		results, err := ts.SearchChunksByKeyword(ctx, &store.FindDocumentChunk{UserID: "u1", Scope: store.DocumentScopeAll, ActiveGroupID: "g1", Limit: 10}, "solar")
		require.NoError(t, err)
		ids := make([]string, 0, len(results))
		for _, r := range results {
			ids = append(ids, r.Chunk.ID)
		}
		assert.ElementsMatch(t, []string{"d1_1", "d4_1"}, ids)
	})

	t.Run("limit", func(t *testing.T) {
		results, err := ts.SearchChunksByVector(ctx, &store.FindDocumentChunk{UserID: "u1", Scope: store.DocumentScopeAll, ActiveGroupID: "g1", Limit: 2}, []float32{1, 0})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "d1_1", results[0].Chunk.ID)
		assert.Equal(t, "d4_1", results[1].Chunk.ID)
	})
}

func TestUserSettingsCache(t *testing.T) {
	ctx := context.Background()
	ts := newTestStore(t)

	settings, err := ts.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", settings.UserID)
	assert.False(t, settings.EnableAgents)

	_, err = ts.UpsertUserSettings(ctx, &store.UserSettings{
		UserID:       "u1",
		EnableAgents: true,
		Agents:       []store.AgentConfig{{Name: "researcher", DefaultAgent: true}},
	})
	require.NoError(t, err)

	settings, err = ts.GetUserSettings(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, settings.EnableAgents)
	require.Len(t, settings.Agents, 1)
	assert.Equal(t, "researcher", settings.Agents[0].Name)
}
