// Package migrations embeds the SQL migration files so standalone (SQLite)
// mode can migrate at open time without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
