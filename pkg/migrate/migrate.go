// Package migrate applies the goose SQL migrations compiled into the binary.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/marketsettle/pkg/logger"
)

// SourceDir is where new migrations are written during development.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the embedded migration files rooted at their directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(fmt.Sprintf("migrations fs: %v", err))
	}
	return sub
}

// Status is one migration as the database sees it.
type Status struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Runner drives a goose provider over the embedded migrations.
type Runner struct {
	provider *goose.Provider
	logg     *logger.Logger
}

func NewRunner(db *sql.DB, logg *logger.Logger) (*Runner, error) {
	return newRunner(db, goose.DialectPostgres, Migrations(), logg)
}

func newRunner(db *sql.DB, dialect goose.Dialect, fsys fs.FS, logg *logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider, logg: logg}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	results, err := r.provider.Up(ctx)
	r.report(ctx, results...)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Down rolls back the latest applied migration.
func (r *Runner) Down(ctx context.Context) error {
	result, err := r.provider.Down(ctx)
	r.report(ctx, result)
	if err != nil {
		return fmt.Errorf("goose down: %w", err)
	}
	return nil
}

// Redo rolls back the latest migration and applies it again.
func (r *Runner) Redo(ctx context.Context) error {
	if err := r.Down(ctx); err != nil {
		return err
	}
	result, err := r.provider.UpByOne(ctx)
	r.report(ctx, result)
	if err != nil {
		return fmt.Errorf("goose redo: %w", err)
	}
	return nil
}

// To migrates up or down until the database sits at target.
func (r *Runner) To(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == version:
		return nil
	case current < version:
		results, err := r.provider.UpTo(ctx, version)
		r.report(ctx, results...)
		if err != nil {
			return fmt.Errorf("goose up-to %d: %w", version, err)
		}
	default:
		results, err := r.provider.DownTo(ctx, version)
		r.report(ctx, results...)
		if err != nil {
			return fmt.Errorf("goose down-to %d: %w", version, err)
		}
	}
	return nil
}

func (r *Runner) Version(ctx context.Context) (int64, error) {
	return r.provider.GetDBVersion(ctx)
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	rows, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		out = append(out, Status{
			Version:   row.Source.Version,
			Path:      row.Source.Path,
			Applied:   row.State == goose.StateApplied,
			AppliedAt: row.AppliedAt,
		})
	}
	return out, nil
}

func (r *Runner) report(ctx context.Context, results ...*goose.MigrationResult) {
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"path":        res.Source.Path,
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		})
		if res.Error != nil {
			r.logg.Error(logCtx, "migration failed", res.Error)
			continue
		}
		r.logg.Info(logCtx, "migration applied")
	}
}
