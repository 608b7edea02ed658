package migrations

import "embed"

// FS contains the embedded datalog schema migrations.
//
//go:embed *.sql
var FS embed.FS
