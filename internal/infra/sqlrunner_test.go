package infra

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

func TestExtractMarker(t *testing.T) {
	marker, stmt, err := extractMarker("\n\t--sql 2f9d1c34-5ab0-4c11-9f6e-3d2b8a71c0de\n\tSELECT 1")
	if err != nil {
		t.Fatalf("extractMarker: %v", err)
	}
	if marker != "2f9d1c34-5ab0-4c11-9f6e-3d2b8a71c0de" {
		t.Fatalf("marker = %q", marker)
	}
	if strings.TrimSpace(stmt) != "SELECT 1" {
		t.Fatalf("stmt = %q", stmt)
	}

	rejected := []string{
		"",
		"SELECT 1",
		"--sql not-a-uuid\nSELECT 1",
		"--sql 2F9D1C34-5AB0-4C11-9F6E-3D2B8A71C0DE\nSELECT 1",
	}
	for _, q := range rejected {
		if _, _, err := extractMarker(q); err == nil {
			t.Fatalf("query %q accepted", q)
		}
	}
}

func TestRunnerRefusesUnmarkedStatements(t *testing.T) {
	r := NewSQLRunner(nil, zerolog.Nop())
	if _, err := r.Exec(context.Background(), "DELETE FROM video_jobs"); err == nil {
		t.Fatal("unmarked exec accepted")
	}
	if _, err := r.Query(context.Background(), "SELECT id FROM video_jobs"); err == nil {
		t.Fatal("unmarked query accepted")
	}
	if err := r.QueryRow(context.Background(), "SELECT id FROM video_jobs").Scan(); err == nil {
		t.Fatal("unmarked query row accepted")
	}
}

type stubPgxRow struct {
	err error
}

func (s stubPgxRow) Scan(dest ...any) error {
	return s.err
}

func TestLoggingRowPassesThroughNoRows(t *testing.T) {
	var buf bytes.Buffer
	row := loggingRow{row: stubPgxRow{err: pgx.ErrNoRows}, logger: zerolog.New(&buf), marker: "m"}
	if err := row.Scan(); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("Scan = %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("no-rows logged: %s", buf.String())
	}
}

func TestObserveFlagsSlowStatements(t *testing.T) {
	var buf bytes.Buffer
	r := &SQLRunner{Logger: zerolog.New(&buf)}
	r.observe("fast", 2*time.Millisecond).Msg("done")
	r.observe("slow", slowQueryThreshold+time.Millisecond).Msg("done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d", len(lines))
	}
	if !strings.Contains(lines[0], `"level":"debug"`) {
		t.Fatalf("fast statement line = %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[1], `"slow":true`) {
		t.Fatalf("slow statement line = %s", lines[1])
	}
}
