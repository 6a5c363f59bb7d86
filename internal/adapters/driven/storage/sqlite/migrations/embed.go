// Package migrations holds the numbered schema files of the document store.
// Store applies every *.up.sql file in name order and records the version
// in schema_migrations.
package migrations

import "embed"

// FS holds the migration files.
//
//go:embed *.sql
var FS embed.FS
