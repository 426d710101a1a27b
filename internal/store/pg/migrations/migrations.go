// Package migrations embeds the Postgres schema of the in-process engine.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
