// Package migrations embeds the SQL schema migrations for the app database.
package migrations

import "embed"

// FS holds the golang-migrate source files.
//
//go:embed *.sql
var FS embed.FS
