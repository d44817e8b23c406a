package migrations

import "embed"

// FS contains embedded SQLite migrations for conference storage.
//
//go:embed *.sql
var FS embed.FS
