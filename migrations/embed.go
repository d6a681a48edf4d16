// Package migrations embeds the versioned schema files applied to every
// facility schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
