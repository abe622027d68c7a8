// Package migrations embeds the SQL schema migrations.
// Files are named NNNNNN_description.{up,down}.sql and applied in name order.
package migrations

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
