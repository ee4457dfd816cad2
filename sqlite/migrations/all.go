// Package migrations embeds the SQL scripts creating the request log schema.
package migrations

import "embed"

//go:embed *.sql
var AllUp embed.FS
