// Package migrations embeds the schema migration files so the server
// binary always carries the schema it expects.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
