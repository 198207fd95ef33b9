// Package store provides an in-memory ledger.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/studio-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	byClient    map[string][]ledger.Entry
	byID        map[string]ledger.Entry
	idempotency map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		byClient:    make(map[string][]ledger.Entry),
		byID:        make(map[string]ledger.Entry),
		idempotency: make(map[string]bool),
	}
}

// AppendEntries adds entries atomically: keys are checked before any write.
func (m *Memory) AppendEntries(_ context.Context, entries []ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[e.IdempotencyKey] || seen[e.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}
	for _, e := range entries {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) appendLocked(e ledger.Entry) {
	list := m.byClient[e.ClientID]

	// keep the slice ordered by CreatedAt, ties in insertion order
	i := sort.Search(len(list), func(i int) bool {
		return list[i].CreatedAt.After(e.CreatedAt)
	})
	list = append(list, ledger.Entry{})
	copy(list[i+1:], list[i:])
	list[i] = e
	m.byClient[e.ClientID] = list
	m.byID[e.ID] = e

	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
}

func (m *Memory) ClientEntries(_ context.Context, clientID string) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Entry, len(m.byClient[clientID]))
	copy(result, m.byClient[clientID])
	return result, nil
}

func (m *Memory) GetEntry(_ context.Context, id string) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.byID[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return e, nil
}

func (m *Memory) EntryExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) SettleEntry(_ context.Context, id string, status ledger.EntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.byID[id]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	e.Status = status
	m.byID[id] = e
	list := m.byClient[e.ClientID]
	for i := range list {
		if list[i].ID == id {
			list[i].Status = status
		}
	}
	return nil
}
