// Package migrations registers the database schema changes applied by
// cmd/migrate and on server startup.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
