package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer records query latency and failures, labelled by statement kind.
type MetricsTracer struct {
	m *metrics.DatabaseMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DatabaseMetrics) *MetricsTracer {
	return &MetricsTracer{m: m}
}

type queryContextKey struct{}

type queryContext struct {
	start time.Time
	kind  string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{start: time.Now(), kind: statementKind(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.m.QueryDuration.WithLabelValues(qctx.kind).Observe(time.Since(qctx.start).Seconds())
	if data.Err != nil {
		t.m.Errors.WithLabelValues(qctx.kind).Inc()
	}
}

// statementKind keeps label cardinality bounded: only the leading keyword is used.
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToUpper(fields[0])
}
