// Package pgtest boots one throwaway Postgres per test binary with the
// schema migrated.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/vipulkatwal/disaster-manage/server/internal/migrations"
)

type config struct {
	image    string
	dbName   string
	user     string
	password string
	migrate  bool
}

type Option func(*config)

func WithImage(i string) Option  { return func(c *config) { c.image = i } }
func WithDBName(n string) Option { return func(c *config) { c.dbName = n } }

// WithoutMigrations leaves the database empty.
func WithoutMigrations() Option { return func(c *config) { c.migrate = false } }

var (
	once    sync.Once
	mu      sync.Mutex
	pg      *postgres.PostgresContainer
	dsn     string
	bootErr error
)

func boot(ctx context.Context, c *config) error {
	container, err := postgres.Run(ctx,
		c.image,
		postgres.WithDatabase(c.dbName),
		postgres.WithUsername(c.user),
		postgres.WithPassword(c.password),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return fmt.Errorf("start postgres: %w", err)
	}
	pg = container

	host, err := container.Host(ctx)
	if err != nil {
		return err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return err
	}
	dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.user, c.password, host, port.Port(), c.dbName)

	if !c.migrate {
		return nil
	}
	db, err := migrations.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrations.Up(db)
}

// DSN boots the shared container on first use and returns its URL.
func DSN(t testing.TB, opts ...Option) string {
	t.Helper()
	once.Do(func() {
		c := &config{
			image:    "docker.io/postgres:16-alpine",
			dbName:   "disasters",
			user:     "postgres",
			password: "pass",
			migrate:  true,
		}
		for _, o := range opts {
			o(c)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		bootErr = boot(ctx, c)
	})
	if bootErr != nil {
		t.Fatalf("pgtest boot failed: %v", bootErr)
	}
	return dsn
}

// Open returns a pool against the shared database, closed with the test.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := migrations.Open(ctx, DSN(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Truncate empties the given tables.
func Truncate(t testing.TB, db *sql.DB, tables ...string) {
	t.Helper()
	if len(tables) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" CASCADE"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

// Shutdown terminates the container. Call it from TestMain.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if pg == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := pg.Terminate(ctx)
	pg = nil
	return err
}
