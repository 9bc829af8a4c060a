package certidigital

import (
	"io/fs"

	"github.com/goliatone/go-certidigital/migrations"
)

// GetMigrationsFS returns the embedded migration tree, postgres files at the
// root and sqlite variants under data/sql/migrations/sqlite, for hosts that
// run migrations with their own persistence client.
func GetMigrationsFS() fs.FS {
	return migrations.FS()
}
