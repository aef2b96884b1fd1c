// Package main applies or rolls back the database migrations.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/migrate"
	"github.com/quarry-ai/quarry/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	down := flag.Bool("down", false, "roll back the most recent migration instead of migrating up")
	flag.Parse()

	log := logger.NewLogger()

	cfg, err := config.NewConfig(log)
	if err != nil {
		log.Error("failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		log.Error("failed to open database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if *down {
		err = migrate.Down(ctx, db, log)
	} else {
		err = migrate.Up(ctx, db, log)
	}
	if err != nil {
		log.Error("migration failed", logger.Error(err))
		os.Exit(1)
	}
}
