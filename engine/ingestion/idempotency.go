package ingestion

import (
	"context"
	"sync"
)

// IdempotencyStore enforces at-most-one-winner for a (content_source_id,
// stage) key. CheckAndSet atomically claims the key: the first caller gets
// alreadyProcessed=false and must perform the stage's side effect; every
// other concurrent or duplicate caller gets alreadyProcessed=true and must
// not repeat it. If the claiming caller's work then fails, it must call
// Unclaim so the key remains retryable by a later delivery.
type IdempotencyStore interface {
	CheckAndSet(ctx context.Context, contentSourceID, stage string) (alreadyProcessed bool, err error)
	Unclaim(ctx context.Context, contentSourceID, stage string) error
}

// InProcessStore is an in-memory IdempotencyStore suitable for a single
// process and for tests. Production deployments externalize this to a
// durable key-value store with the same check-and-set contract.
type InProcessStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewInProcessStore creates an empty store.
func NewInProcessStore() *InProcessStore {
	return &InProcessStore{seen: make(map[string]bool)}
}

func key(contentSourceID, stage string) string {
	return contentSourceID + "|" + stage
}

func (s *InProcessStore) CheckAndSet(_ context.Context, contentSourceID, stage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(contentSourceID, stage)
	if s.seen[k] {
		return true, nil
	}
	s.seen[k] = true
	return false, nil
}

func (s *InProcessStore) Unclaim(_ context.Context, contentSourceID, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key(contentSourceID, stage))
	return nil
}
