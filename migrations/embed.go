// Package migrations compiles the schema SQL into the binary, so a
// deployed controller never depends on loose .sql files next to it.
// Importing this package for side effects registers the files with the
// database layer:
//
//	import _ "github.com/verdant-labs/verdant-core/migrations"
package migrations

import (
	"embed"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "." // files sit at the root of this FS
}
