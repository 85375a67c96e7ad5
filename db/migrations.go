// Package db holds the SQL schema migrations.
package db

import "embed"

// Migrations contains every file under migrations/, applied in name order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the SQL files.
const MigrationsDir = "migrations"
