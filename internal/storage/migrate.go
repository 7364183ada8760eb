package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"finsight/pkg/errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema behind dsn to the latest version. It uses
// its own connection so closing the migrator leaves the caller's pool intact.
func RunMigrations(driver Driver, dsn string) error {
	db, err := sql.Open(sqlDriverName(driver), dsn)
	if err != nil {
		return errors.StorageError(errors.CodeStorageUnavailable, "open migration database", err)
	}
	defer db.Close()

	instance, err := migrationDriver(driver, db)
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "load migrations", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(driver), instance)
	if err != nil {
		return errors.StorageError(errors.CodeMigrationFailed, "create migrator", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.StorageError(errors.CodeMigrationFailed, "migrate up", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and whether it is dirty
func SchemaVersion(driver Driver, dsn string) (uint, bool, error) {
	db, err := sql.Open(sqlDriverName(driver), dsn)
	if err != nil {
		return 0, false, errors.StorageError(errors.CodeStorageUnavailable, "open migration database", err)
	}
	defer db.Close()

	instance, err := migrationDriver(driver, db)
	if err != nil {
		return 0, false, err
	}
	defer instance.Close()

	version, dirty, err := instance.Version()
	if err != nil {
		return 0, false, errors.StorageError(errors.CodeStorageRead, "read schema version", err)
	}
	if version < 0 {
		return 0, false, nil
	}
	return uint(version), dirty, nil
}

func migrationDriver(driver Driver, db *sql.DB) (database.Driver, error) {
	var (
		instance database.Driver
		err      error
	)
	switch driver {
	case DriverSQLite:
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	case DriverPostgres:
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "storage.driver", driver,
			fmt.Errorf("driver has no schema migrations"))
	}
	if err != nil {
		return nil, errors.StorageError(errors.CodeMigrationFailed, "create migration driver", err)
	}
	return instance, nil
}

func sqlDriverName(driver Driver) string {
	if driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite"
}
