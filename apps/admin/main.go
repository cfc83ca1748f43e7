package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/colegio/core"
	logsvc "github.com/trezcool/colegio/services/logger"
	"github.com/trezcool/colegio/storage/database"
	"github.com/trezcool/colegio/storage/database/seed"
	sqlxrepos "github.com/trezcool/colegio/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("setting up database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	if err = database.Ping(ctx, db); err != nil {
		logger.Fatal("pinging database", err)
	}

	// start CLI
	cli := commandLine{
		db: db,
		repos: seed.Repos{
			Users:    sqlxrepos.NewUserRepository(db),
			Academic: sqlxrepos.NewAcademicRepository(db),
			Billing:  sqlxrepos.NewBillingRepository(db),
		},
		logger: logger,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Flush()
	if err != nil {
		if err != errHelp {
			logger.Error("admin: "+err.Error(), err)
		}
		os.Exit(1)
	}
}
