package sqlite

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

// placeholder returns a placeholder for SQLite (uses ?)
func placeholder(int) string {
	return "?"
}

// placeholders returns n placeholders for SQLite
func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}

func marshalJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal json column")
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func unmarshalJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(data), v), "failed to unmarshal json column")
}

// chunkScopeWhere builds the ownership filter of a chunk search, appending to args.
func chunkScopeWhere(find *store.FindDocumentChunk, args []any) ([]string, []any) {
	const personal = "(user_id = ? AND group_id = '' AND public_workspace_id = '')"

	var where []string
	switch find.Scope {
	case store.DocumentScopePersonal:
		where, args = append(where, personal), append(args, find.UserID)
	case store.DocumentScopeGroup:
		if find.ActiveGroupID == "" {
			where = append(where, "1 = 0")
		} else {
			where, args = append(where, "group_id = ?"), append(args, find.ActiveGroupID)
		}
	default:
		ors := []string{personal, "public_workspace_id <> ''"}
		args = append(args, find.UserID)
		if find.ActiveGroupID != "" {
			ors, args = append(ors, "group_id = ?"), append(args, find.ActiveGroupID)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if find.DocumentID != "" {
		where, args = append(where, "document_id = ?"), append(args, find.DocumentID)
	}
	return where, args
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
