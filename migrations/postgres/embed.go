// Package migrations embebe las migraciones SQL (formato goose).
package migrations

import "embed"

// FS contiene las migraciones de Postgres.
//
//go:embed *.sql
var FS embed.FS
