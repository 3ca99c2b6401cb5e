package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiffinbox/backend/internal/models"
)

// MemoryStore is a Store kept in process memory. Each account has its own
// mutex, so writers on one account never block writers on another.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*memAccount
	now      func() time.Time
}

type memAccount struct {
	mu      sync.Mutex
	rec     models.LedgerRecord
	entries []*models.CreditEntry
	refs    map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*memAccount),
		now:      time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) slot(id uuid.UUID) (*memAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *MemoryStore) EnsureAccount(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; ok {
		return nil
	}
	rec := models.NewLedgerRecord(id)
	rec.UpdatedAt = s.now().UTC()
	s.accounts[id] = &memAccount{rec: rec, refs: make(map[string]struct{})}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (models.LedgerRecord, error) {
	a, ok := s.slot(id)
	if !ok {
		return models.LedgerRecord{}, ErrAccountNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rec.Clone(), nil
}

func (s *MemoryStore) Mutate(_ context.Context, id uuid.UUID, fn MutateFunc) (models.LedgerRecord, error) {
	a, ok := s.slot(id)
	if !ok {
		return models.LedgerRecord{}, ErrAccountNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := a.rec.Clone()
	entry, err := fn(&rec)
	if err != nil {
		return models.LedgerRecord{}, err
	}
	now := s.now().UTC()
	if entry != nil && entry.ReferenceID != nil {
		key := entry.EntryType + ":" + entry.ReferenceID.String()
		if _, dup := a.refs[key]; dup {
			return models.LedgerRecord{}, ErrDuplicateReference
		}
		a.refs[key] = struct{}{}
	}
	rec.Version++
	rec.UpdatedAt = now
	a.rec = rec
	if entry != nil {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.AccountID = id
		entry.CreatedAt = now
		cp := *entry
		a.entries = append(a.entries, &cp)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Entries(_ context.Context, id uuid.UUID, limit int) ([]*models.CreditEntry, error) {
	a, ok := s.slot(id)
	if !ok {
		return nil, ErrAccountNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*models.CreditEntry, 0, len(a.entries))
	for i := len(a.entries) - 1; i >= 0; i-- {
		cp := *a.entries[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) FindEntry(_ context.Context, id uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error) {
	a, ok := s.slot(id)
	if !ok {
		return nil, ErrAccountNotFound
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.EntryType == entryType && e.ReferenceID != nil && *e.ReferenceID == ref {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (s *MemoryStore) ListAutoOrderAccounts(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	slots := make(map[uuid.UUID]*memAccount, len(s.accounts))
	for id, a := range s.accounts {
		slots[id] = a
	}
	s.mu.Unlock()

	var ids []uuid.UUID
	for id, a := range slots {
		a.mu.Lock()
		enabled := a.rec.AutoOrderEnabled
		a.mu.Unlock()
		if enabled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}
