// Package db owns the relational projection schema. Migrations are
// embedded so the binary can bootstrap its own database.
package db

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema up to date. Running against an
// already-current database is a no-op.
func RunMigrations(database *sql.DB) error {
	driver, err := sqlite3.WithInstance(database, &sqlite3.Config{})
	if err != nil {
		return apperrors.NewDatabaseError("could not create sqlite driver", err, nil)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return apperrors.NewDatabaseError("could not read embedded migrations", err, nil)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return apperrors.NewDatabaseError("could not create migrate instance", err, nil)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return apperrors.NewDatabaseError("could not run migrations", err, nil)
	}
	return nil
}
