package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pressly/goose/v3"
)

//go:embed device/*.sql index/*.sql remote/*.sql
var files embed.FS

// Set selects one group of local migrations.
type Set string

const (
	// Device is the schema of every per-device database.
	Device Set = "device"
	// Index is the schema of the shared device index database.
	Index Set = "index"
)

// Run applies all pending migrations of set against a libSQL database.
func Run(ctx context.Context, db *sql.DB, set Set) error {
	sub, err := fs.Sub(files, string(set))
	if err != nil {
		return fmt.Errorf("opening %s migrations: %w", set, err)
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("running %s migrations: %w", set, err)
	}
	return nil
}

// RunRemote applies the Postgres schema using golang-migrate. dsn is a
// postgres:// URL.
func RunRemote(dsn string) error {
	src, err := iofs.New(files, "remote")
	if err != nil {
		return fmt.Errorf("opening remote migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running remote migrations: %w", err)
	}
	return nil
}

// RemoteVersion reports the applied remote schema version.
func RemoteVersion(dsn string) (version uint, dirty bool, err error) {
	src, err := iofs.New(files, "remote")
	if err != nil {
		return 0, false, fmt.Errorf("opening remote migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}
