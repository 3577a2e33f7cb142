package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed mysql/*.sql postgres/*.sql
var migrationFiles embed.FS

// Apply brings the schema of dialect ("mysql" or "postgres") up to the
// latest embedded migration. Applied versions are tracked in
// schema_migrations; an up-to-date schema is not an error.
func Apply(ctx context.Context, db *sql.DB, dialect string) error {
	src, err := iofs.New(migrationFiles, dialect)
	if err != nil {
		return fmt.Errorf("read migrations for %s: %w", dialect, err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		src.Close()
		return fmt.Errorf("acquire connection: %w", err)
	}

	var driver database.Driver
	switch dialect {
	case "mysql":
		driver, err = mysql.WithConnection(ctx, conn, &mysql.Config{})
	case "postgres":
		driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
	default:
		err = fmt.Errorf("unknown dialect %q", dialect)
	}
	if err != nil {
		src.Close()
		conn.Close()
		return fmt.Errorf("migration driver for %s: %w", dialect, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		src.Close()
		driver.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	// closes the source and the dedicated connection, not db
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Version reports the schema version recorded by Apply.
func Version(ctx context.Context, db *sql.DB, dialect string) (version uint, dirty bool, err error) {
	query := `SELECT version, dirty FROM schema_migrations LIMIT 1`
	if err := db.QueryRowContext(ctx, query).Scan(&version, &dirty); err != nil {
		return 0, false, fmt.Errorf("read %s schema version: %w", dialect, err)
	}
	return version, dirty, nil
}
