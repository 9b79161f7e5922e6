package hooks

import (
	"embed"
	"io/fs"
)

// migrationsFS contains the webhook schema, including the sqlite dialect
// alternatives under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the full embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// GetCoreMigrationsFS returns the webhook and delivery job schema.
func GetCoreMigrationsFS() fs.FS {
	return migrationsFS
}
