package main

import (
	"context"
	"flag"
	"os"

	"dropshare/internal/config"
	"dropshare/internal/database"
	"dropshare/internal/logging"
	"dropshare/internal/migrations"
)

func main() {
	down := flag.Int("down", 0, "roll back the given number of migrations instead of applying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Connect(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if *down > 0 {
		err = migrations.Rollback(db, *down, logger)
	} else {
		err = migrations.Apply(db, logger)
	}
	if err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
}
