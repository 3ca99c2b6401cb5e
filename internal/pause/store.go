package pause

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiffinbox/backend/internal/calendar"
)

// Store persists paused dates. Toggle must flip membership atomically.
type Store interface {
	Toggle(ctx context.Context, accountID uuid.UUID, date time.Time) (bool, error)
	Between(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]time.Time, error)
}

// MemoryStore keeps pauses in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	paused map[uuid.UUID]map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{paused: make(map[uuid.UUID]map[string]time.Time)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Toggle(_ context.Context, accountID uuid.UUID, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := s.paused[accountID]
	if days == nil {
		days = make(map[string]time.Time)
		s.paused[accountID] = days
	}
	key := calendar.Format(date)
	if _, ok := days[key]; ok {
		delete(days, key)
		return false, nil
	}
	days[key] = calendar.Day(date)
	return true, nil
}

func (s *MemoryStore) Between(_ context.Context, accountID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to = calendar.Day(from), calendar.Day(to)
	var out []time.Time
	for _, d := range s.paused[accountID] {
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Repository is the Postgres Store backed by the paused_dates table.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Toggle(ctx context.Context, accountID uuid.UUID, date time.Time) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM paused_dates WHERE account_id = $1 AND pause_date = $2
	`, accountID, calendar.Day(date))
	if err != nil {
		return false, err
	}
	paused := tag.RowsAffected() == 0
	if paused {
		if _, err := tx.Exec(ctx, `
			INSERT INTO paused_dates (account_id, pause_date) VALUES ($1, $2)
			ON CONFLICT (account_id, pause_date) DO NOTHING
		`, accountID, calendar.Day(date)); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return paused, nil
}

func (r *Repository) Between(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pause_date FROM paused_dates
		WHERE account_id = $1 AND pause_date BETWEEN $2 AND $3
		ORDER BY pause_date
	`, accountID, calendar.Day(from), calendar.Day(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, calendar.Day(d))
	}
	return out, rows.Err()
}
