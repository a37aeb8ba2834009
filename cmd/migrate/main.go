package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kdimtricp/poseannotator/internal/config"
	"github.com/kdimtricp/poseannotator/internal/database"
	"github.com/kdimtricp/poseannotator/internal/logger"
)

func main() {
	var (
		envFile        = flag.String("env", ".env", "Path to an optional .env file")
		migrationsPath = flag.String("migrations", "", "Path to migrations directory (defaults to MIGRATIONS_PATH)")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	if *migrationsPath == "" {
		*migrationsPath = cfg.MigrationsPath
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.NewDB(cfg.Database())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db.Conn(), cfg.DBType, log)

	if !*status {
		fmt.Printf("Running migrations from %s...\n", *migrationsPath)
		if err := migrator.Run(*migrationsPath); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		fmt.Println("Migrations completed successfully!")
		return
	}

	if cfg.DBType != "postgres" {
		fmt.Println("SQLite schema is managed inline; no migrations to report.")
		return
	}
	if err := migrator.Initialize(); err != nil {
		log.Fatal("failed to initialize migrator", zap.Error(err))
	}
	applied, err := migrator.GetAppliedMigrations()
	if err != nil {
		log.Fatal("failed to get applied migrations", zap.Error(err))
	}
	migrations, err := migrator.LoadMigrations(*migrationsPath)
	if err != nil {
		log.Fatal("failed to load migrations", zap.Error(err))
	}

	fmt.Println("Migration Status:")
	fmt.Println("=================")
	for _, m := range migrations {
		state := "pending"
		if applied[m.Version] {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", m.Version, m.Name, state)
	}
}
