package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SQLExecutor is the surface the repositories run their inline queries
// through.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// Every inline query starts with a `--sql <uuid>` marker line so log lines
// can be correlated back to the exact statement without echoing SQL text.
var markerRegexp = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Statements slower than this log at warn level with their marker.
const slowQueryThreshold = 250 * time.Millisecond

// SQLRunner executes marker-prefixed SQL against the pool and logs by
// marker. Queries without a valid marker are refused.
type SQLRunner struct {
	Pool   *pgxpool.Pool
	Logger zerolog.Logger
}

func NewSQLRunner(pool *pgxpool.Pool, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{Pool: pool, Logger: logger.With().Str("component", "sql").Logger()}
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.Pool.Exec(ctx, stmt, args...)
	elapsed := time.Since(start)
	if err != nil {
		r.Logger.Error().Str("marker", marker).Dur("elapsed", elapsed).Err(err).Msg("exec failed")
		return tag, err
	}
	r.observe(marker, elapsed).Int64("rows", tag.RowsAffected()).Msg("exec ok")
	return tag, nil
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{row: r.Pool.QueryRow(ctx, stmt, args...), logger: r.Logger, marker: marker}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, stmt, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.Pool.Query(ctx, stmt, args...)
	elapsed := time.Since(start)
	if err != nil {
		r.Logger.Error().Str("marker", marker).Dur("elapsed", elapsed).Err(err).Msg("query failed")
		return nil, err
	}
	r.observe(marker, elapsed).Msg("query ok")
	return rows, nil
}

// observe picks the log level for a finished statement by its duration.
func (r *SQLRunner) observe(marker string, elapsed time.Duration) *zerolog.Event {
	ev := r.Logger.Debug()
	if elapsed >= slowQueryThreshold {
		ev = r.Logger.Warn().Bool("slow", true)
	}
	return ev.Str("marker", marker).Dur("elapsed", elapsed)
}

type loggingRow struct {
	row    pgx.Row
	logger zerolog.Logger
	marker string
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	if err != nil && !IsNoRows(err) {
		l.logger.Error().Str("marker", l.marker).Err(err).Msg("scan failed")
	}
	return err
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", errors.New("empty query")
	}
	markerLine, stmt, _ := strings.Cut(trimmed, "\n")
	markerLine = strings.TrimSpace(markerLine)
	if !markerRegexp.MatchString(markerLine) {
		return "", "", errors.New("sql marker missing or invalid")
	}
	return strings.TrimPrefix(markerLine, "--sql "), stmt, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
