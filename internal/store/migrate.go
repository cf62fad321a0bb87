package store

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies the embedded migrations for driver. steps of 0 means all.
func Migrate(driver, dsn, direction string, steps int) error {
	d := Dialect(driver)
	if d != DialectSQLite && d != DialectPostgres {
		return fmt.Errorf("unsupported storage driver %q", driver)
	}
	src, err := iofs.New(migrations, "migrations/"+string(d))
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(d, dsn))
	if err != nil {
		return err
	}
	defer m.Close()

	switch direction {
	case "", "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("unknown direction: %s", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func migrationURL(d Dialect, dsn string) string {
	if d == DialectSQLite && !strings.HasPrefix(dsn, "sqlite://") {
		return "sqlite://" + strings.TrimPrefix(dsn, "file:")
	}
	return dsn
}
