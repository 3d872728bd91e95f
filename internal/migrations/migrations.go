// Package migrations versions the store schema. The SQL lives next to this
// file, one directory per dialect, and is embedded into the binary.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/hanpama/usergraph/internal/store"
)

//go:embed sql
var files embed.FS

// Up applies every pending migration.
func Up(ctx context.Context, url string, logger *slog.Logger) error {
	return run(ctx, url, logger, func(m *migrate.Migrate) error {
		return ignoreNoChange(m.Up())
	})
}

// Down rolls back steps migrations. steps below 1 rolls back one.
func Down(ctx context.Context, url string, steps int, logger *slog.Logger) error {
	if steps < 1 {
		steps = 1
	}
	return run(ctx, url, logger, func(m *migrate.Migrate) error {
		return ignoreNoChange(m.Steps(-steps))
	})
}

// Version reports the applied schema version. A store without any applied
// migration reports version 0.
func Version(ctx context.Context, url string, logger *slog.Logger) (version uint, dirty bool, err error) {
	err = run(ctx, url, logger, func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		return err
	})
	return version, dirty, err
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func run(ctx context.Context, url string, logger *slog.Logger, fn func(*migrate.Migrate) error) (err error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := open(url)
	if err != nil {
		return err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()
	m.Log = migrateLogger{logger: logger}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	if err := fn(m); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return ctx.Err()
}

// open builds a migrator over a dedicated handle. golang-migrate closes the
// handle with the migrator, so the serving pool is never shared with it.
func open(url string) (*migrate.Migrate, error) {
	dialect, dsn, err := store.ParseURL(url)
	if err != nil {
		return nil, err
	}
	src, err := iofs.New(files, "sql/"+dialect.Name)
	if err != nil {
		return nil, fmt.Errorf("migrations: load %s scripts: %w", dialect, err)
	}
	db, err := sql.Open(dialect.Name, dsn)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("migrations: open %s: %w", dialect, err)
	}
	driver, err := databaseDriver(dialect, db)
	if err != nil {
		src.Close()
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect.Name, driver)
	if err != nil {
		src.Close()
		driver.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return m, nil
}

func databaseDriver(dialect store.Dialect, db *sql.DB) (database.Driver, error) {
	switch dialect {
	case store.Postgres:
		return migratepg.WithInstance(db, &migratepg.Config{})
	case store.MySQL:
		return migratemysql.WithInstance(db, &migratemysql.Config{})
	case store.SQLite:
		return migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	return nil, fmt.Errorf("no migration driver for %s", dialect)
}

type migrateLogger struct{ logger *slog.Logger }

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
