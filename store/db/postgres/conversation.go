package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

const conversationColumns = `id, user_id, group_id, chat_type, title, last_updated_ts, classification, context, tags, strict`

func (d *DB) UpsertConversation(ctx context.Context, upsert *store.Conversation) (*store.Conversation, error) {
	classification, err := marshalJSON(upsert.Classification, "[]")
	if err != nil {
		return nil, err
	}
	contexts, err := marshalJSON(upsert.Context, "[]")
	if err != nil {
		return nil, err
	}
	tags, err := marshalJSON(upsert.Tags, "[]")
	if err != nil {
		return nil, err
	}

	args := []any{upsert.ID, upsert.UserID, upsert.GroupID, string(upsert.ChatType), upsert.Title, upsert.LastUpdatedTs, classification, contexts, tags, upsert.Strict}
	stmt := `INSERT INTO conversation (` + conversationColumns + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			group_id = EXCLUDED.group_id,
			chat_type = EXCLUDED.chat_type,
			title = EXCLUDED.title,
			last_updated_ts = EXCLUDED.last_updated_ts,
			classification = EXCLUDED.classification,
			context = EXCLUDED.context,
			tags = EXCLUDED.tags,
			strict = EXCLUDED.strict`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to upsert conversation")
	}
	return upsert, nil
}

func (d *DB) GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error) {
	list, err := d.ListConversations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}

	query := `SELECT ` + conversationColumns + ` FROM conversation WHERE ` + strings.Join(where, " AND ") + ` ORDER BY last_updated_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := make([]*store.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversations")
	}
	return list, nil
}

func scanConversation(rows *sql.Rows) (*store.Conversation, error) {
	c := &store.Conversation{}
	var chatType string
	var classification, contexts, tags []byte
	if err := rows.Scan(&c.ID, &c.UserID, &c.GroupID, &chatType, &c.Title, &c.LastUpdatedTs, &classification, &contexts, &tags, &c.Strict); err != nil {
		return nil, errors.Wrap(err, "failed to scan conversation")
	}
	c.ChatType = store.ChatType(chatType)
	if err := unmarshalJSON(classification, &c.Classification); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(contexts, &c.Context); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(tags, &c.Tags); err != nil {
		return nil, err
	}
	return c, nil
}
