package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nashra.news/internal/config"
	"nashra.news/internal/migrate"
)

const usage = "usage: migrate [-config path] [-dsn dsn] <up|down|seed|status>"

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	dsnFlag := flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	migrationsPath := flag.String("migrations", "ops/migrations/sql", "directory with .up.sql/.down.sql files")
	seedsPath := flag.String("seeds", "ops/migrations/seeds", "directory with seed .sql files")
	flag.Parse()

	if flag.NArg() != 1 {
		fail(usage)
	}
	cmd := flag.Arg(0)

	// DSN resolution: flag, then env, then the config file if one is named.
	dsn := *dsnFlag
	if dsn == "" {
		dsn = os.Getenv("NASHRA_PG_DSN")
	}
	if dsn == "" && *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fail("load config: %v", err)
		}
		dsn = cfg.DB.DSN
	}
	if dsn == "" {
		fail("no DSN: set -dsn, NASHRA_PG_DSN, or db.dsn in the config file")
	}

	if err := run(cmd, dsn, *migrationsPath, *seedsPath); err != nil {
		fail("migrate %s: %v", cmd, err)
	}
}

func run(cmd, dsn, migrationsPath, seedsPath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	mgr := migrate.NewManager(db, os.DirFS(migrationsPath), os.DirFS(seedsPath))

	switch cmd {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "seed":
		return mgr.Seed(ctx)
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (%s)", cmd, usage)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
