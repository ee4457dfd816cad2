// Package test_migrations embeds scripts exercising the migrator.
package test_migrations

import "embed"

//go:embed *.sql
var All embed.FS
