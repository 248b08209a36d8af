// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

// FS holds email templates, the common passwords list and the SQL migrations.
//go:embed all:assets migrations
var FS embed.FS

const (
	MigrationsDir       = "migrations"
	CommonPasswordsFile = "assets/common-passwords.txt"
)
