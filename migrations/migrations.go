// Package migrations embeds the orchestrator's relational schema SQL so
// infrastructure/migrate can apply it without a runtime filesystem
// dependency.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
