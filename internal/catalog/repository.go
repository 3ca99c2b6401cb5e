package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiffinbox/backend/internal/models"
)

// Reader loads plans. Plans are maintained by the menu team; this service
// never writes them.
type Reader interface {
	ListActive(ctx context.Context) ([]*models.Plan, error)
	GetByName(ctx context.Context, name string) (*models.Plan, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Reader = (*Repository)(nil)

func (r *Repository) ListActive(ctx context.Context) ([]*models.Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, base_price, base_credits
		FROM plans WHERE is_active = TRUE ORDER BY base_price, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Plan{}
	for rows.Next() {
		var p models.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.BasePrice, &p.BaseCredits); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func (r *Repository) GetByName(ctx context.Context, name string) (*models.Plan, error) {
	var p models.Plan
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, base_price, base_credits
		FROM plans WHERE name = $1 AND is_active = TRUE
	`, name).Scan(&p.ID, &p.Name, &p.Description, &p.BasePrice, &p.BaseCredits)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultPlans is the launch menu. The plans migration seeds the same rows.
func DefaultPlans() []*models.Plan {
	return []*models.Plan{
		{ID: 1, Name: "Green Plan", Description: "Vegetarian thalis", BasePrice: 2999, BaseCredits: 30},
		{ID: 2, Name: "Smart Mix", Description: "Alternating veg and non-veg", BasePrice: 3499, BaseCredits: 30},
		{ID: 3, Name: "Red Plan", Description: "Non-vegetarian thalis", BasePrice: 3999, BaseCredits: 30},
	}
}

// MemoryRepository serves a fixed plan list.
type MemoryRepository struct {
	mu    sync.RWMutex
	plans map[string]*models.Plan
}

func NewMemoryRepository(plans ...*models.Plan) *MemoryRepository {
	if len(plans) == 0 {
		plans = DefaultPlans()
	}
	m := &MemoryRepository{plans: make(map[string]*models.Plan, len(plans))}
	for _, p := range plans {
		cp := *p
		m.plans[p.Name] = &cp
	}
	return m
}

var _ Reader = (*MemoryRepository)(nil)

func (m *MemoryRepository) ListActive(_ context.Context) ([]*models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*models.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		cp := *p
		list = append(list, &cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].BasePrice < list[j].BasePrice })
	return list, nil
}

func (m *MemoryRepository) GetByName(_ context.Context, name string) (*models.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[name]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}
