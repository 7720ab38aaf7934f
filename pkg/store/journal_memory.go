package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vaultguard-labs/vaultguard-go/pkg/contracts"
	"github.com/vaultguard-labs/vaultguard-go/pkg/errs"
)

// MemoryJournal is the in-process Journal for tests and ephemeral runs.
type MemoryJournal struct {
	mu      sync.RWMutex
	byID    map[string]*SubmissionRecord
	byTxID  map[contracts.TxID]string
	ordered []string
}

var _ Journal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		byID:   make(map[string]*SubmissionRecord),
		byTxID: make(map[contracts.TxID]string),
	}
}

func (m *MemoryJournal) Record(_ context.Context, r *SubmissionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byID[r.ID]; dup {
		return errs.Validation("journal entry %s already recorded", r.ID)
	}
	cp := *r
	m.byID[r.ID] = &cp
	m.byTxID[r.TxID] = r.ID
	m.ordered = append(m.ordered, r.ID)
	return nil
}

func (m *MemoryJournal) Resolve(_ context.Context, id string, status SubmissionStatus, lastErr string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return errs.Validation("journal entry %s not found", id)
	}
	r.Status = status
	r.LastError = lastErr
	if status.Resolved() {
		r.ResolvedAt = at
	}
	if status == StatusAmbiguous || status == StatusTimedOut {
		r.Attempts++
	}
	return nil
}

func (m *MemoryJournal) GetByTxID(_ context.Context, txID contracts.TxID) (*SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byTxID[txID]
	if !ok {
		return nil, errs.Validation("no journal entry for tx %s", txID)
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryJournal) ListUnresolved(_ context.Context) ([]*SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SubmissionRecord
	for _, id := range m.ordered {
		if r := m.byID[id]; !r.Status.Resolved() {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryJournal) ListByVault(_ context.Context, vault contracts.Address, limit int) ([]*SubmissionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*SubmissionRecord
	for _, id := range m.ordered {
		if r := m.byID[id]; r.Vault == vault {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
