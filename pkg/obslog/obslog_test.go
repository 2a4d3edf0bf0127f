package obslog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestQueryHashLength(t *testing.T) {
	h := QueryHash("dicas para Orlando", 16)
	if len(h) != 16 {
		t.Fatalf("expected 16 hex chars, got %d (%q)", len(h), h)
	}
}

func TestQueryHashEmpty(t *testing.T) {
	if got := QueryHash("", 16); got != "" {
		t.Fatalf("expected empty hash for empty query, got %q", got)
	}
}

func TestEmitNeverLeaksRawQuery(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	rawQuery := "quero comprar ingresso Magic Kingdom"
	Emit(log, Record{
		Service:   "evidence",
		Route:     "/mcp/retrieve_travel_evidence",
		QueryHash: QueryHash(rawQuery, 16),
		LatencyMS: 12.345,
	})

	out := buf.String()
	if strings.Contains(out, rawQuery) {
		t.Fatalf("log record leaked raw query: %s", out)
	}
	if !strings.Contains(out, QueryHash(rawQuery, 16)) {
		t.Fatalf("expected query hash in log record: %s", out)
	}
}

func TestRoundTwoDecimals(t *testing.T) {
	if got := roundTwoDecimals(12.3456); got != 12.35 {
		t.Fatalf("got %v, want 12.35", got)
	}
}
