package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/chatturn/internal/profile"
	"github.com/hrygo/chatturn/store"
)

// SQLite backs development and tests. Vector similarity is computed in Go over
// JSON-encoded embeddings, keyword search is term matching with LIKE.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database at profile.DSN. Use ":memory:" for tests.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - Disable foreign key checks, the schema keeps no foreign keys.
	// - Set busy timeout to 10s so concurrent writers wait instead of failing.
	dsn := profile.DSN
	if dsn != ":memory:" {
		dsn += "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	schema, err := store.LatestSchema("sqlite")
	if err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply sqlite schema")
	}
	return nil
}
