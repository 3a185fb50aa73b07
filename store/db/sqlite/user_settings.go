package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/chatturn/store"
)

func (d *DB) UpsertUserSettings(ctx context.Context, upsert *store.UserSettings) (*store.UserSettings, error) {
	settings, err := marshalJSON(upsert, "{}")
	if err != nil {
		return nil, err
	}

	stmt := `INSERT INTO user_settings (user_id, settings, updated_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			settings = excluded.settings,
			updated_ts = excluded.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.UserID, settings, upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user_settings")
	}
	return upsert, nil
}

func (d *DB) GetUserSettings(ctx context.Context, userID string) (*store.UserSettings, error) {
	var data string
	err := d.db.QueryRowContext(ctx, `SELECT settings FROM user_settings WHERE user_id = ?`, userID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get user_settings")
	}

	result := &store.UserSettings{}
	if err := unmarshalJSON(data, result); err != nil {
		return nil, err
	}
	result.UserID = userID
	return result, nil
}
