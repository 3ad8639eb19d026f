package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/auth"
	"github.com/trezcool/escola/core/billing"
	"github.com/trezcool/escola/core/directory"
	blobsvc "github.com/trezcool/escola/services/blob"
	emailsvc "github.com/trezcool/escola/services/email"
	logsvc "github.com/trezcool/escola/services/logger"
	"github.com/trezcool/escola/storage/database"
	sqlxrepos "github.com/trezcool/escola/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(!conf.Debug)

	code := 0
	defer func() {
		logger.Sync()
		os.Exit(code)
	}()

	errAndDie := func(msg string, err error) {
		if err != nil {
			logger.Fatal(msg, err)
		}
	}

	// set up DB
	db, err := database.Connect(context.Background(), conf)
	errAndDie("connecting to database", err)
	defer db.Close()

	blobs, err := blobsvc.New(conf)
	errAndDie("setting up blob store", err)

	// TODO: wait for the notification mails to be sent before exiting
	mailSvc := emailsvc.New(conf, logger)
	validator := auth.NewValidator()
	dir := directory.NewService(sqlxrepos.NewDirectoryRepository(db), validator)

	// start CLI
	cli := commandLine{
		migrator: migrator{db: db.DB},
		accounts: auth.NewService(sqlxrepos.NewAuthRepository(db), dir, mailSvc, validator, conf),
		boletos: billing.NewService(
			sqlxrepos.NewBillingRepository(db),
			dir,
			blobs,
			mailSvc,
			validator,
			nil,
		),
		out: os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			logger.Error("command failed", err)
		}
		code = 1
	}
}
