// Package migrations embeds the SQL schema files, applied in file name order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
