package main

import (
	"fmt"
	"os"

	"brokerbook/internal/config"
	"brokerbook/internal/db"
	"brokerbook/internal/logging"

	"github.com/spf13/pflag"
)

func main() {
	steps := pflag.IntP("steps", "n", 1, "number of migrations to roll back with down")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrate [up|down] [--steps N]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	direction := "up"
	if pflag.NArg() > 0 {
		direction = pflag.Arg(0)
	}

	cfg := config.Load()
	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty()})
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	switch direction {
	case "up":
		err = db.MigrateUp(database.DB, log)
	case "down":
		err = db.MigrateDown(database.DB, *steps, log)
	default:
		pflag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("direction", direction).Msg("migration failed")
	}
}
