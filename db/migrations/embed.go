package migrations

import "embed"

// Files embeds the up and down migrations for golang-migrate.
//
//go:embed *.sql
var Files embed.FS
