// Package migrations carries the schema and change-feed triggers.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var files embed.FS

// Driver is the database/sql driver name registered by pgx.
const Driver = "pgx"

// FS returns the migration files rooted at their directory.
func FS() fs.FS {
	sub, err := fs.Sub(files, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

func prepare() error {
	goose.SetBaseFS(FS())
	return goose.SetDialect("postgres")
}

// Up applies every pending migration.
func Up(db *sql.DB) error {
	return Run(context.Background(), db, "up")
}

// Run executes a goose command (up, down, status, redo, version, reset).
func Run(ctx context.Context, db *sql.DB, command string, args ...string) error {
	if err := prepare(); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(Driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}
