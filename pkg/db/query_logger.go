package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketsettle/pkg/logger"
)

// queryLogger routes GORM output into the service logger. Missing rows are
// an expected outcome for lookups and are not reported.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	clone.level = level
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Info {
		q.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Error {
		q.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && q.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		stmt, rows := fc()
		q.logg.Error(q.fields(ctx, stmt, rows, elapsed), "sql statement failed", err)
	case q.slow > 0 && elapsed > q.slow && q.level >= gormlogger.Warn:
		stmt, rows := fc()
		q.logg.Warn(q.fields(ctx, stmt, rows, elapsed), "slow sql statement")
	case q.level >= gormlogger.Info:
		stmt, rows := fc()
		q.logg.Debug(q.fields(ctx, stmt, rows, elapsed), "sql statement")
	}
}

func (q *queryLogger) fields(ctx context.Context, stmt string, rows int64, elapsed time.Duration) context.Context {
	return q.logg.WithFields(ctx, map[string]any{
		"sql":         stmt,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
}
