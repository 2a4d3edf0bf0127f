// Package session implements the per-session memory store (C6): a
// process-local, not thread-shared mapping of extracted preferences and
// constraints plus a bounded recent-intent sequence, per session_id.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	maxSummaryLen = 500
	maxRecent     = 3
)

// State is one session's extracted memory.
type State struct {
	Preferences map[string]string
	Constraints map[string]string
	Recent      []string // most-recent-first, deduplicated
}

// Store is the process-local session memory store. Callers are expected to
// reuse the same session_id serially within one request; no internal
// synchronization beyond what's needed to avoid corrupting the map itself
// is provided.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
}

// New creates an empty session Store.
func New() *Store {
	return &Store{sessions: make(map[string]*State)}
}

func (s *Store) get(sessionID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &State{Preferences: map[string]string{}, Constraints: map[string]string{}}
		s.sessions[sessionID] = st
	}
	return st
}

// Update extracts preferences/constraints from userQuery via the
// deterministic keyword-matching pass and merges them into the session's
// state, then records the query as the most recent intent (move-to-front,
// deduplicated, bounded to 3).
func (s *Store) Update(sessionID, userQuery string) State {
	prefs, constraints := ExtractSignals(userQuery)

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &State{Preferences: map[string]string{}, Constraints: map[string]string{}}
		s.sessions[sessionID] = st
	}
	for k, v := range prefs {
		st.Preferences[k] = v
	}
	for k, v := range constraints {
		st.Constraints[k] = v
	}
	st.Recent = moveToFront(st.Recent, userQuery, maxRecent)

	return cloneState(st)
}

func cloneState(st *State) State {
	prefs := make(map[string]string, len(st.Preferences))
	for k, v := range st.Preferences {
		prefs[k] = v
	}
	constraints := make(map[string]string, len(st.Constraints))
	for k, v := range st.Constraints {
		constraints[k] = v
	}
	recent := append([]string(nil), st.Recent...)
	return State{Preferences: prefs, Constraints: constraints, Recent: recent}
}

func moveToFront(recent []string, item string, max int) []string {
	out := make([]string, 0, max)
	out = append(out, item)
	for _, r := range recent {
		if r == item {
			continue
		}
		out = append(out, r)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// Summary renders a single bounded string with stable key order
// "prefs:... constraints:... recent:...", truncated to at most 500 chars.
func (s *Store) Summary(sessionID string) string {
	st := s.get(sessionID)
	s.mu.Lock()
	clone := cloneState(st)
	s.mu.Unlock()
	return renderSummary(clone)
}

func renderSummary(st State) string {
	var b strings.Builder
	b.WriteString("prefs:")
	b.WriteString(sortedPairs(st.Preferences))
	b.WriteString(" constraints:")
	b.WriteString(sortedPairs(st.Constraints))
	b.WriteString(" recent:")
	b.WriteString(strings.Join(st.Recent, "|"))

	out := b.String()
	if len(out) > maxSummaryLen {
		out = out[:maxSummaryLen]
	}
	return out
}

func sortedPairs(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, m[k])
	}
	return strings.Join(parts, ",")
}

// MemoryHash returns the first n hex characters of sha256(summary), or the
// empty string when the session carries no signal at all.
func (s *Store) MemoryHash(sessionID string, n int) string {
	summary := s.Summary(sessionID)
	if strings.TrimSpace(summary) == "prefs: constraints: recent:" || summary == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(summary))
	h := hex.EncodeToString(sum[:])
	if n > len(h) {
		n = len(h)
	}
	return h[:n]
}
