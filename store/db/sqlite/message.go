package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

func (d *DB) CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	metadata, err := marshalJSON(create.Metadata, "{}")
	if err != nil {
		return nil, err
	}
	extra, err := marshalJSON(create.Extra, "{}")
	if err != nil {
		return nil, err
	}

	fields := []string{"id", "conversation_id", "role", "content", "created_ts", "model_deployment_name", "metadata", "extra"}
	args := []any{create.ID, create.ConversationID, string(create.Role), create.Content, create.CreatedTs, create.ModelDeploymentName, metadata, extra}
	stmt := `INSERT INTO message (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create message")
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error) {
	order := "ASC"
	if find.Order == store.SortDesc {
		order = "DESC"
	}

	args := []any{find.ConversationID}
	query := `SELECT id, conversation_id, role, content, created_ts, model_deployment_name, metadata, extra
		FROM message WHERE conversation_id = ?
		ORDER BY created_ts ` + order + `, rowid ` + order
	if find.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := make([]*store.Message, 0)
	for rows.Next() {
		m := &store.Message{}
		var role, metadata, extra string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedTs, &m.ModelDeploymentName, &metadata, &extra); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		m.Role = store.MessageRole(role)
		if err := unmarshalJSON(metadata, &m.Metadata); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(extra, &m.Extra); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate messages")
	}
	return list, nil
}
