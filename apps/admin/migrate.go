package main

import (
	"context"
	"database/sql"

	"github.com/trezcool/escola/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

type migrator struct {
	db *sql.DB
}

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	return gooseRunFunc(ctx, cli.migrator.db, args[0], args[1:]...)
}
