// Package migrations embeds the schema of the Postgres document backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
