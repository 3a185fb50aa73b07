package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

// placeholder returns a placeholder for PostgreSQL ($1, $2, ...)
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n placeholders starting at $1.
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

func unmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(data, v), "failed to unmarshal json column")
}

// chunkScopeWhere builds the ownership filter of a chunk search, appending to args.
func chunkScopeWhere(find *store.FindDocumentChunk, args []any) ([]string, []any) {
	personal := func() string {
		args = append(args, find.UserID)
		return "(c.user_id = " + placeholder(len(args)) + " AND c.group_id = '' AND c.public_workspace_id = '')"
	}

	var where []string
	switch find.Scope {
	case store.DocumentScopePersonal:
		where = append(where, personal())
	case store.DocumentScopeGroup:
		if find.ActiveGroupID == "" {
			where = append(where, "1 = 0")
		} else {
			args = append(args, find.ActiveGroupID)
			where = append(where, "c.group_id = "+placeholder(len(args)))
		}
	default:
		ors := []string{personal(), "c.public_workspace_id <> ''"}
		if find.ActiveGroupID != "" {
			args = append(args, find.ActiveGroupID)
			ors = append(ors, "c.group_id = "+placeholder(len(args)))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if find.DocumentID != "" {
		args = append(args, find.DocumentID)
		where = append(where, "c.document_id = "+placeholder(len(args)))
	}
	return where, args
}
