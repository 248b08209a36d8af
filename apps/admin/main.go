package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/report"
	"github.com/reportcardpro/backend/core/user"
	"github.com/reportcardpro/backend/fs"
	"github.com/reportcardpro/backend/services/email"
	"github.com/reportcardpro/backend/services/logger"
	"github.com/reportcardpro/backend/services/resolver"
	"github.com/reportcardpro/backend/storage/database"
	"github.com/reportcardpro/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zapLogger, err := logsvc.NewZapLogger(conf, "ADMIN")
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zapLogger, conf)
	logger.Enable(!conf.Debug)

	ctx := context.Background()
	if conf.Database.Engine == database.EngineMemory {
		errAndDie(logger, errors.New("the admin tool needs a persistent database engine"))
	}

	// set up DB
	errAndDie(logger, database.CreateIfNotExist(ctx, conf))
	db, err := database.Open(conf)
	errAndDie(logger, err)
	errAndDie(logger, database.Ping(ctx, db))

	cli, err := newCommandLine(ctx, conf, db, logger, os.Stdout)
	errAndDie(logger, err)

	// start CLI
	err = cli.run(ctx, os.Args)
	_ = db.Close()
	logger.Sync()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

// newCommandLine sets up the services used by the admin commands.
func newCommandLine(ctx context.Context, conf *core.Config, db *sqlx.DB, logger core.Logger, out io.Writer) (*commandLine, error) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile, logger)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf)

	colResolver, err := resolversvc.New(ctx, conf, logger)
	if err != nil {
		return nil, errors.Wrap(err, "setting up column resolver")
	}
	reportSvc, err := report.NewService(sqlxrepos.NewBatchRepository(db), colResolver, validate, logger, conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up report service")
	}

	return &commandLine{
		db:        db,
		usrSvc:    usrSvc,
		reportSvc: reportSvc,
		validate:  validate,
		out:       out,
	}, nil
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
