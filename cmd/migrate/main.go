// Package main applies the embedded database migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"costledger/internal/config"
	"costledger/internal/infrastructure/migration"
	"costledger/pkg/logger"
)

func main() {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(logger.Config{Level: *logLevel, Development: true, Service: "migrate"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load configuration", "error", err)
	}

	m, err := migration.New(cfg.Database.DSN)
	if err != nil {
		log.Fatalw("failed to create migrator", "error", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warnw("failed to close migrator", "error", err)
		}
	}()

	ctx := context.Background()
	log.Infow("migration CLI started", "command", command)

	switch command {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	case "steps":
		n, convErr := intArg(args, "steps")
		if convErr != nil {
			log.Fatalw("invalid arguments", "error", convErr)
		}
		err = m.Steps(ctx, n)
	case "force":
		v, convErr := intArg(args, "force")
		if convErr != nil {
			log.Fatalw("invalid arguments", "error", convErr)
		}
		err = m.Force(ctx, v)
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil {
			log.Fatalw("failed to get version", "error", verErr)
		}
		fmt.Printf("version: %d, dirty: %t\n", version, dirty)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalw("migration failed", "command", command, "error", err)
	}
}

func intArg(args []string, command string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: migrate %s <n>", command)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", command, args[1])
	}
	return n, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate [flags] <command> [args]

Commands:
  up          apply all pending migrations
  down        roll back all migrations
  steps <n>   apply n migrations, negative n rolls back
  version     print the applied version
  force <v>   set the version without running migrations

The database DSN comes from config.toml or COSTLEDGER_DATABASE_DSN.`)
}
