package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/db"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|redo|status|to|create|validate")
	dir := flag.String("dir", migrate.SourceDir, "migrations source directory (create, validate)")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (for to)")
	flag.Parse()

	// create and validate work on the source tree, not the database.
	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	runner, err := migrate.NewRunner(sqlDB, logg)
	requireResource(ctx, logg, "migration runner", err)

	switch *cmd {
	case "up":
		err = runner.Up(ctx)
	case "down":
		err = runner.Down(ctx)
	case "redo":
		err = runner.Redo(ctx)
	case "to":
		if *version == "" {
			fail("missing -version for to")
		}
		err = runner.To(ctx, *version)
	case "status":
		err = printStatus(ctx, runner)
	default:
		fail("unknown -cmd value: %s", *cmd)
	}
	if err != nil {
		fail("%s failed: %v", *cmd, err)
	}
}

func printStatus(ctx context.Context, runner *migrate.Runner) error {
	rows, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
	for _, row := range rows {
		applied := "pending"
		if row.Applied {
			applied = row.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, applied, row.Path)
	}
	return w.Flush()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
