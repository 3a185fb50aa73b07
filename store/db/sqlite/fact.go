package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

func (d *DB) CreateFact(ctx context.Context, create *store.Fact) (*store.Fact, error) {
	args := []any{create.ID, create.AgentID, create.ScopeType, create.ScopeID, create.ConversationID, create.Value, create.CreatedTs}
	stmt := `INSERT INTO fact (id, agent_id, scope_type, scope_id, conversation_id, value, created_ts)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create fact")
	}
	return create, nil
}

func (d *DB) ListFacts(ctx context.Context, find *store.FindFact) ([]*store.Fact, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.AgentID != nil {
		where, args = append(where, "agent_id = ?"), append(args, *find.AgentID)
	}
	if find.ScopeType != nil {
		where, args = append(where, "scope_type = ?"), append(args, *find.ScopeType)
	}
	if find.ScopeID != nil {
		where, args = append(where, "scope_id = ?"), append(args, *find.ScopeID)
	}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}

	query := `SELECT id, agent_id, scope_type, scope_id, conversation_id, value, created_ts
		FROM fact WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, rowid ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list facts")
	}
	defer rows.Close()

	list := make([]*store.Fact, 0)
	for rows.Next() {
		f := &store.Fact{}
		if err := rows.Scan(&f.ID, &f.AgentID, &f.ScopeType, &f.ScopeID, &f.ConversationID, &f.Value, &f.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan fact")
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate facts")
	}
	return list, nil
}

func (d *DB) DeleteFact(ctx context.Context, delete *store.DeleteFact) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM fact WHERE id = ? AND agent_id = ?`, delete.ID, delete.AgentID)
	if err != nil {
		return errors.Wrap(err, "failed to delete fact")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}
