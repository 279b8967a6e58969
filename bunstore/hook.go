package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-hotstorage/pkg/logging"
	"github.com/uptrace/bun"
)

// QueryLogger is a bun.QueryHook writing every backing store query to the
// logger. Queries slower than the threshold are logged at warn level.
type QueryLogger struct {
	logger logging.Logger
	slow   time.Duration
}

var _ bun.QueryHook = (*QueryLogger)(nil)

// NewQueryLogger returns a hook; a zero slow threshold disables slow query
// warnings.
func NewQueryLogger(logger logging.Logger, slow time.Duration) *QueryLogger {
	if logger == nil {
		logger = logging.Nop()
	}
	return &QueryLogger{logger: logger, slow: slow}
}

func (h *QueryLogger) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogger) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	attrs := []any{"operation", event.Operation(), "query", event.Query, "elapsed", elapsed}

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.logger.WarnCtx(ctx, "backing store query failed", append(attrs, "error", event.Err)...)
	case h.slow > 0 && elapsed >= h.slow:
		h.logger.WarnCtx(ctx, "slow backing store query", attrs...)
	default:
		h.logger.DebugCtx(ctx, "backing store query", attrs...)
	}
}
