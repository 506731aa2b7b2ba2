// Command migrate manages the Postgres schema.
//
//	migrate up
//	migrate down [n]
//	migrate force <version>
//	migrate version
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/logger"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up | down [n] | force <version> | version")
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.NewLogger(cfg.Log.Dir)
	defer log.Close()

	if len(os.Args) < 2 {
		usage()
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatal("CONFIG", fmt.Sprintf("migrations only run against postgres, DB_DRIVER is %q", cfg.Database.Driver))
	}

	db, err := database.Open(context.Background(), cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open database: %v", err))
	}

	runner := migrations.NewRunner(db.DB, migrations.Options{Dir: cfg.Migrations.Dir}, log)
	defer runner.Close()

	switch os.Args[1] {
	case "up":
		err = runner.Up()
	case "down":
		n := 1
		if len(os.Args) > 2 {
			if n, err = strconv.Atoi(os.Args[2]); err != nil {
				usage()
			}
		}
		err = runner.Down(n)
	case "force":
		if len(os.Args) < 3 {
			usage()
		}
		var v int
		if v, err = strconv.Atoi(os.Args[2]); err != nil {
			usage()
		}
		err = runner.Force(v)
	case "version":
		var (
			v     uint
			dirty bool
		)
		if v, dirty, err = runner.Version(); err == nil {
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
		}
	default:
		usage()
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("migrate %s: %v", os.Args[1], err))
	}
	log.Info("DATABASE", fmt.Sprintf("migrate %s done", os.Args[1]))
}
