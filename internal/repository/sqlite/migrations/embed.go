package migrations

import "embed"

// FS holds the versioned schema files, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
