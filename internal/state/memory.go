package state

import (
	"context"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// MemoryStore is the default in-process Store. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]cty.Value
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]cty.Value)}
}

func (s *MemoryStore) Snapshot(_ context.Context, key Key) (cty.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if val, ok := s.states[flatten(key)]; ok {
		return val, nil
	}
	return Empty(), nil
}

func (s *MemoryStore) Save(_ context.Context, key Key, _ int, state cty.Value) error {
	if state == cty.NilVal || state.IsNull() {
		state = Empty()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[flatten(key)] = state
	return nil
}

func (s *MemoryStore) Discard(_ context.Context, runID string) error {
	prefix := runID + "\x1f"
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.states {
		if strings.HasPrefix(k, prefix) {
			delete(s.states, k)
		}
	}
	return nil
}

// flatten joins the key parts with a separator that cannot appear in ids.
func flatten(key Key) string {
	return key.RunID + "\x1f" + key.CycleID + "\x1f" + key.NodeID
}

var _ Store = (*MemoryStore)(nil)
