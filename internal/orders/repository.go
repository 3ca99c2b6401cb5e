package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiffinbox/backend/internal/calendar"
	"github.com/tiffinbox/backend/internal/models"
)

// Store persists the order log.
type Store interface {
	// Create inserts o unless an order with the same id exists. It reports
	// whether a row was written.
	Create(ctx context.Context, o *models.Order) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateStatus moves an order from one status to another only if it is
	// still in the from status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, riderPhone *string) (*models.Order, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.Order, error)
	ListBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Order, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const orderColumns = `id, account_id, source, items, total_amount, delivery_date, status, rider_phone, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.AccountID, &o.Source, &o.Items, &o.TotalAmount, &o.DeliveryDate,
		&o.Status, &o.RiderPhone, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o.DeliveryDate = calendar.Day(o.DeliveryDate)
	return &o, nil
}

func (r *Repository) Create(ctx context.Context, o *models.Order) (bool, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO orders (id, account_id, source, items, total_amount, delivery_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at
	`, o.ID, o.AccountID, o.Source, o.Items, o.TotalAmount, calendar.Day(o.DeliveryDate), o.Status).Scan(&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, riderPhone *string) (*models.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $3, rider_phone = COALESCE($4, rider_phone), updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+orderColumns, id, from, to, riderPhone))
	if errors.Is(err, ErrOrderNotFound) {
		// Either missing or moved concurrently.
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrInvalidTransition
	}
	return o, err
}

func (r *Repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE account_id = $1 ORDER BY delivery_date DESC, created_at DESC`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	return r.list(ctx, q, args...)
}

func (r *Repository) ListBetween(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Order, error) {
	return r.list(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE account_id = $1 AND delivery_date BETWEEN $2 AND $3
		ORDER BY delivery_date, created_at
	`, accountID, calendar.Day(from), calendar.Day(to))
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]*models.Order, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// MemoryStore keeps orders in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]*models.Order), now: time.Now}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, o *models.Order) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return false, nil
	}
	now := m.now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	o.DeliveryDate = calendar.Day(o.DeliveryDate)
	cp := *o
	m.orders[o.ID] = &cp
	return true, nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus, riderPhone *string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if o.Status != from {
		return nil, ErrInvalidTransition
	}
	o.Status = to
	if riderPhone != nil {
		phone := *riderPhone
		o.RiderPhone = &phone
	}
	o.UpdatedAt = m.now().UTC()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]*models.Order, error) {
	list := m.filter(func(o *models.Order) bool { return o.AccountID == accountID })
	sort.Slice(list, func(i, j int) bool { return list[i].DeliveryDate.After(list[j].DeliveryDate) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemoryStore) ListBetween(_ context.Context, accountID uuid.UUID, from, to time.Time) ([]*models.Order, error) {
	from, to = calendar.Day(from), calendar.Day(to)
	list := m.filter(func(o *models.Order) bool {
		return o.AccountID == accountID && !o.DeliveryDate.Before(from) && !o.DeliveryDate.After(to)
	})
	sort.Slice(list, func(i, j int) bool { return list[i].DeliveryDate.Before(list[j].DeliveryDate) })
	return list, nil
}

func (m *MemoryStore) filter(keep func(*models.Order) bool) []*models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := []*models.Order{}
	for _, o := range m.orders {
		if keep(o) {
			cp := *o
			list = append(list, &cp)
		}
	}
	return list
}
