package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

func (d *DB) CreateSafetyLog(ctx context.Context, create *store.SafetyLog) (*store.SafetyLog, error) {
	categories, err := marshalJSON(create.TriggeredCategories, "[]")
	if err != nil {
		return nil, err
	}
	matches, err := marshalJSON(create.BlocklistMatches, "[]")
	if err != nil {
		return nil, err
	}

	args := []any{create.ID, create.UserID, create.ConversationID, create.Message, categories, matches, create.Reason, create.CreatedTs}
	stmt := `INSERT INTO safety_log (id, user_id, conversation_id, message, triggered_categories, blocklist_matches, reason, created_ts)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create safety_log")
	}
	return create, nil
}

func (d *DB) ListSafetyLogs(ctx context.Context, find *store.FindSafetyLog) ([]*store.SafetyLog, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = "+placeholder(len(args)+1)), append(args, *find.ConversationID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `SELECT id, user_id, conversation_id, message, triggered_categories, blocklist_matches, reason, created_ts
		FROM safety_log WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list safety_logs")
	}
	defer rows.Close()

	list := make([]*store.SafetyLog, 0)
	for rows.Next() {
		l := &store.SafetyLog{}
		var categories, matches []byte
		if err := rows.Scan(&l.ID, &l.UserID, &l.ConversationID, &l.Message, &categories, &matches, &l.Reason, &l.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan safety_log")
		}
		if err := unmarshalJSON(categories, &l.TriggeredCategories); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(matches, &l.BlocklistMatches); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate safety_logs")
	}
	return list, nil
}
