package migrations

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the schema for the ledger, emission checkpoint and
// rate-limit state tables, with sqlite alternatives under sqlite/.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// FS returns the embedded migration tree rooted above data/sql/migrations.
func FS() fs.FS {
	return migrationsFS
}
