package store

import (
	"embed"
	"path"

	"github.com/pkg/errors"
)

// Schema files live at migration/{driver}/LATEST.sql. Every statement is idempotent
// so applying LATEST.sql on start is safe for both fresh and existing databases.

//go:embed migration
var migrationFS embed.FS

// LatestSchemaFileName is the name of the full schema file of each driver.
const LatestSchemaFileName = "LATEST.sql"

// LatestSchema returns the full schema for the given driver.
func LatestSchema(driver string) (string, error) {
	data, err := migrationFS.ReadFile(path.Join("migration", driver, LatestSchemaFileName))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read schema for driver %s", driver)
	}
	return string(data), nil
}
