// Package migrations embeds the SQL schema for the device and alert tables.
package migrations

import (
	"embed"

	"github.com/nerrad567/lora-alert/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
