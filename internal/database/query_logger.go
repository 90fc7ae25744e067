package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// QueryLoggerConfig configures query logging behavior. Session and
// chunk writes sit on the webhook path, so a slow query here shows up
// directly as stale advice on the live view; the thresholds are tight
// on purpose.
type QueryLoggerConfig struct {
	// SlowQueryThreshold is the duration above which queries are logged at WARN level.
	SlowQueryThreshold time.Duration

	// VerySlowQueryThreshold is the duration above which queries are logged at ERROR level.
	VerySlowQueryThreshold time.Duration

	// LogAllQueries enables DEBUG logging of every query.
	// When false, only slow and failed queries are logged.
	LogAllQueries bool
}

// DefaultQueryLoggerConfig returns sensible defaults for query logging.
func DefaultQueryLoggerConfig() *QueryLoggerConfig {
	return &QueryLoggerConfig{
		SlowQueryThreshold:     50 * time.Millisecond,
		VerySlowQueryThreshold: 250 * time.Millisecond,
		LogAllQueries:          false,
	}
}

// QueryLogger implements pgx query tracing for monitoring and logging.
type QueryLogger struct {
	config *QueryLoggerConfig
	logger *zap.Logger

	totalQueries int64
	slowQueries  int64
	failed       int64
}

// NewQueryLogger creates a new query logger.
func NewQueryLogger(cfg *QueryLoggerConfig, logger *zap.Logger) *QueryLogger {
	if cfg == nil {
		cfg = DefaultQueryLoggerConfig()
	}
	return &QueryLogger{
		config: cfg,
		logger: logger.Named("query"),
	}
}

// Counts returns the total, slow, and failed query counts.
func (ql *QueryLogger) Counts() (total, slow, failed int64) {
	return atomic.LoadInt64(&ql.totalQueries),
		atomic.LoadInt64(&ql.slowQueries),
		atomic.LoadInt64(&ql.failed)
}

// queryTraceData stores timing data across trace calls.
type queryTraceData struct {
	startTime time.Time
	sql       string
}

// ctxKey is the context key type for storing trace data.
type ctxKey struct{}

// TraceQueryStart is called at the beginning of query execution.
// It implements pgx.QueryTracer interface.
func (ql *QueryLogger) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, ctxKey{}, &queryTraceData{
		startTime: time.Now(),
		sql:       data.SQL,
	})
}

// TraceQueryEnd is called at the end of query execution.
// It implements pgx.QueryTracer interface.
func (ql *QueryLogger) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	traceData, ok := ctx.Value(ctxKey{}).(*queryTraceData)
	if !ok {
		return
	}

	duration := time.Since(traceData.startTime)
	atomic.AddInt64(&ql.totalQueries, 1)

	if data.Err != nil {
		atomic.AddInt64(&ql.failed, 1)
		ql.logger.Error("query failed",
			zap.String("sql", truncateSQL(traceData.sql, 500)),
			zap.Duration("duration", duration),
			zap.Error(data.Err),
		)
		return
	}

	switch {
	case duration >= ql.config.VerySlowQueryThreshold:
		atomic.AddInt64(&ql.slowQueries, 1)
		ql.logger.Error("very slow query detected",
			zap.String("sql", truncateSQL(traceData.sql, 500)),
			zap.Duration("duration", duration),
			zap.Duration("threshold", ql.config.VerySlowQueryThreshold),
			zap.String("command_tag", data.CommandTag.String()),
		)
	case duration >= ql.config.SlowQueryThreshold:
		atomic.AddInt64(&ql.slowQueries, 1)
		ql.logger.Warn("slow query detected",
			zap.String("sql", truncateSQL(traceData.sql, 500)),
			zap.Duration("duration", duration),
			zap.Duration("threshold", ql.config.SlowQueryThreshold),
			zap.String("command_tag", data.CommandTag.String()),
		)
	case ql.config.LogAllQueries:
		ql.logger.Debug("query executed",
			zap.String("sql", truncateSQL(traceData.sql, 200)),
			zap.Duration("duration", duration),
			zap.String("command_tag", data.CommandTag.String()),
		)
	}
}

// truncateSQL truncates SQL to a maximum length for logging.
func truncateSQL(sql string, maxLen int) string {
	if len(sql) <= maxLen {
		return sql
	}
	return sql[:maxLen-3] + "..."
}
