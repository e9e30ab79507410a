package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// queryLogger forwards GORM statement diagnostics to the service logger so
// they carry request_id and order_id from the context. Only failed and slow
// statements are logged; record-not-found is a normal outcome.
type queryLogger struct {
	logg *logger.Logger
	slow time.Duration
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Default.LogMode(gormlogger.Silent)
	}
	return &queryLogger{logg: logg, slow: slow}
}

func (q *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q *queryLogger) Info(ctx context.Context, msg string, _ ...any) {
	q.logg.Debug(ctx, msg)
}

func (q *queryLogger) Warn(ctx context.Context, msg string, _ ...any) {
	q.logg.Warn(ctx, msg)
}

func (q *queryLogger) Error(ctx context.Context, msg string, _ ...any) {
	q.logg.Error(ctx, msg, nil)
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled)
	slow := q.slow > 0 && elapsed > q.slow
	if !failed && !slow {
		return
	}
	sql, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{"sql": sql, "rows": rows, "elapsed_ms": elapsed.Milliseconds()})
	if failed {
		q.logg.Error(ctx, "db.query_failed", err)
		return
	}
	q.logg.Warn(ctx, "db.query_slow")
}
