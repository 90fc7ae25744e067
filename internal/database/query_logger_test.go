package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestQueryLogger(cfg *QueryLoggerConfig) (*QueryLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewQueryLogger(cfg, zap.New(core)), logs
}

func traceQuery(ql *QueryLogger, sql string, delay time.Duration, err error) {
	ctx := ql.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: sql})
	if delay > 0 {
		time.Sleep(delay)
	}
	ql.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{
		CommandTag: pgconn.NewCommandTag("SELECT 1"),
		Err:        err,
	})
}

func TestQueryLogger_FastQueryNotLogged(t *testing.T) {
	ql, logs := newTestQueryLogger(DefaultQueryLoggerConfig())

	traceQuery(ql, "SELECT advice_text FROM sessions WHERE call_sid = $1", 0, nil)

	if got := logs.Len(); got != 0 {
		t.Errorf("log entries = %d, want 0", got)
	}
	total, slow, failed := ql.Counts()
	if total != 1 || slow != 0 || failed != 0 {
		t.Errorf("counts = (%d, %d, %d), want (1, 0, 0)", total, slow, failed)
	}
}

func TestQueryLogger_SlowQueryLoggedAtWarn(t *testing.T) {
	ql, logs := newTestQueryLogger(&QueryLoggerConfig{
		SlowQueryThreshold:     time.Millisecond,
		VerySlowQueryThreshold: time.Hour,
	})

	traceQuery(ql, "INSERT INTO transcript_chunks (call_sid, seq, text) VALUES ($1, $2, $3)", 5*time.Millisecond, nil)

	entries := logs.FilterMessage("slow query detected").All()
	if len(entries) != 1 {
		t.Fatalf("slow query entries = %d, want 1", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("level = %v, want %v", entries[0].Level, zap.WarnLevel)
	}
	_, slow, _ := ql.Counts()
	if slow != 1 {
		t.Errorf("slow count = %d, want 1", slow)
	}
}

func TestQueryLogger_VerySlowQueryLoggedAtError(t *testing.T) {
	ql, logs := newTestQueryLogger(&QueryLoggerConfig{
		SlowQueryThreshold:     time.Millisecond,
		VerySlowQueryThreshold: 2 * time.Millisecond,
	})

	traceQuery(ql, "UPDATE sessions SET status = $2 WHERE call_sid = $1", 10*time.Millisecond, nil)

	entries := logs.FilterMessage("very slow query detected").All()
	if len(entries) != 1 {
		t.Fatalf("very slow entries = %d, want 1", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel {
		t.Errorf("level = %v, want %v", entries[0].Level, zap.ErrorLevel)
	}
}

func TestQueryLogger_FailedQueryLogged(t *testing.T) {
	ql, logs := newTestQueryLogger(DefaultQueryLoggerConfig())

	traceQuery(ql, "SELECT 1", 0, errors.New("connection reset"))

	entries := logs.FilterMessage("query failed").All()
	if len(entries) != 1 {
		t.Fatalf("failed entries = %d, want 1", len(entries))
	}
	_, _, failed := ql.Counts()
	if failed != 1 {
		t.Errorf("failed count = %d, want 1", failed)
	}
}

func TestQueryLogger_LogAllQueries(t *testing.T) {
	ql, logs := newTestQueryLogger(&QueryLoggerConfig{
		SlowQueryThreshold:     time.Hour,
		VerySlowQueryThreshold: time.Hour,
		LogAllQueries:          true,
	})

	traceQuery(ql, "SELECT 1", 0, nil)

	entries := logs.FilterMessage("query executed").All()
	if len(entries) != 1 {
		t.Fatalf("debug entries = %d, want 1", len(entries))
	}
	if entries[0].Level != zap.DebugLevel {
		t.Errorf("level = %v, want %v", entries[0].Level, zap.DebugLevel)
	}
}

func TestQueryLogger_MissingTraceDataIgnored(t *testing.T) {
	ql, logs := newTestQueryLogger(DefaultQueryLoggerConfig())

	// End without a matching start should not panic or log.
	ql.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})

	if got := logs.Len(); got != 0 {
		t.Errorf("log entries = %d, want 0", got)
	}
	total, _, _ := ql.Counts()
	if total != 0 {
		t.Errorf("total = %d, want 0", total)
	}
}

func TestQueryLogger_NilConfigUsesDefaults(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	ql := NewQueryLogger(nil, zap.New(core))

	if ql.config.SlowQueryThreshold != 50*time.Millisecond {
		t.Errorf("SlowQueryThreshold = %v, want 50ms", ql.config.SlowQueryThreshold)
	}
	if ql.config.VerySlowQueryThreshold != 250*time.Millisecond {
		t.Errorf("VerySlowQueryThreshold = %v, want 250ms", ql.config.VerySlowQueryThreshold)
	}
}

func TestTruncateSQL(t *testing.T) {
	long := strings.Repeat("SELECT * FROM sessions; ", 50)

	got := truncateSQL(long, 100)
	if len(got) != 100 {
		t.Errorf("len = %d, want 100", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated SQL should end with ellipsis, got %q", got[len(got)-10:])
	}

	short := "SELECT 1"
	if got := truncateSQL(short, 100); got != short {
		t.Errorf("got %q, want %q", got, short)
	}
}
