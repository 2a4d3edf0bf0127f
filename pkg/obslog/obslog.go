// Package obslog renders the one-structured-record-per-request logging
// contract shared by every retrieval service and the orchestrator. Raw user
// queries are never logged; QueryHash stands in for correlation.
package obslog

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// QueryHash returns the first n hex characters of sha256(query). The
// default correlation length used across the system is 16.
func QueryHash(query string, n int) string {
	if query == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(query))
	h := hex.EncodeToString(sum[:])
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}

// Record is the fixed field set of the one-per-request structured log line.
type Record struct {
	Service         string
	Route           string
	CacheHit        bool
	BackendFallback bool
	LatencyMS       float64
	SessionID       string
	RequestID       string
	QueryHash       string
}

// Emit writes Record as a single slog.Info call with the fixed field set.
// Timestamps are UTC ISO-8601 (slog's default JSON handler already emits
// this); latency is rounded to two decimal places.
func Emit(log *slog.Logger, r Record) {
	args := []any{
		"service", r.Service,
		"route", r.Route,
		"cache_hit", r.CacheHit,
		"backend_fallback", r.BackendFallback,
		"latency_ms", roundTwoDecimals(r.LatencyMS),
		"ts", time.Now().UTC().Format(time.RFC3339Nano),
	}
	if r.SessionID != "" {
		args = append(args, "session_id", r.SessionID)
	}
	if r.RequestID != "" {
		args = append(args, "request_id", r.RequestID)
	}
	if r.QueryHash != "" {
		args = append(args, "query_hash", r.QueryHash)
	}
	log.Info("request", args...)
}

func roundTwoDecimals(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
