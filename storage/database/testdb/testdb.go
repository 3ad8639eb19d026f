//go:build integration
// +build integration

// Package testdb starts a migrated postgres container for the repository tests.
package testdb

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/trezcool/escola/storage/database"
)

type DBHandle struct {
	DB     *sqlx.DB
	cancel func()
	stop   func(context.Context) error
}

func (h *DBHandle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Truncate empties every table of the schema.
func (h *DBHandle) Truncate(ctx context.Context) error {
	_, err := h.DB.ExecContext(ctx, `
		TRUNCATE sessions, accounts, activities, calendar_events, boletos, grades,
			students, disciplines, classes, teachers, guardians`)
	return err
}

func Start(ctx context.Context) (*DBHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)

	pg, err := postgres.RunContainer(ctx,
		tc.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("escola"),
		postgres.WithUsername("escola"),
		postgres.WithPassword("escola"),
	)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "starting postgres container")
	}
	fail := func(err error) (*DBHandle, error) {
		_ = pg.Terminate(ctx)
		cancel()
		return nil, err
	}

	uri, err := pg.ConnectionString(ctx, "sslmode=disable", "timezone=utc")
	if err != nil {
		return fail(err)
	}
	db, err := sqlx.Open("postgres", uri)
	if err != nil {
		return fail(err)
	}
	if err := waitReady(ctx, db); err != nil {
		return fail(err)
	}
	if err := database.Migrate(ctx, db.DB, "up"); err != nil {
		return fail(errors.Wrap(err, "migrating"))
	}

	return &DBHandle{
		DB:     db,
		cancel: cancel,
		stop:   pg.Terminate,
	}, nil
}

func waitReady(ctx context.Context, db *sqlx.DB) error {
	dead := time.Now().Add(20 * time.Second)
	for time.Now().Before(dead) {
		if err := db.PingContext(ctx); err == nil {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("db not ready")
}
