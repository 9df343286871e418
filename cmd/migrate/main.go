// Package main runs goose commands against the embedded warden migrations.
//
//	migrate up
//	migrate status
//	migrate down-to 20250101000000
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"warden/internal/platform/config"
	"warden/internal/platform/database"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|status|version|redo|reset|up-to|down-to> [args]")
		os.Exit(2)
	}

	config.LoadDotEnv()
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Migrations are run explicitly here, never as a side effect of connecting.
	cfg.Database.AutoMigrate = false
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Run(ctx, pool.DB(), os.Args[1], os.Args[2:]...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1) //nolint:gocritic // exit after defer is acceptable for a CLI
	}
}
