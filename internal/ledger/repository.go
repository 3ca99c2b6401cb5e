package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiffinbox/backend/internal/models"
)

// JournalWriter appends journal entries inside the caller's transaction.
type JournalWriter interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditEntry) error
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditEntry, error)
	FindByReference(ctx context.Context, accountID uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error)
}

// Repository is the Postgres Store. Every Mutate runs in its own
// transaction that holds the account row lock (SELECT ... FOR UPDATE) from
// read to commit.
type Repository struct {
	pool    *pgxpool.Pool
	journal JournalWriter
}

func NewRepository(pool *pgxpool.Pool, journal JournalWriter) *Repository {
	return &Repository{pool: pool, journal: journal}
}

var _ Store = (*Repository)(nil)

const selectRecord = `
	SELECT id, credits, credit_expiry, wallet_balance, auto_order_enabled, active_plan, daily_cost, version, updated_at
	FROM accounts WHERE id = $1`

func scanRecord(row pgx.Row) (models.LedgerRecord, error) {
	var rec models.LedgerRecord
	err := row.Scan(&rec.AccountID, &rec.Credits, &rec.CreditExpiry, &rec.WalletBalance,
		&rec.AutoOrderEnabled, &rec.ActivePlan, &rec.DailyCost, &rec.Version, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.LedgerRecord{}, ErrAccountNotFound
	}
	return rec, err
}

// EnsureAccount creates the account row on first sight. Existing rows are
// left untouched.
func (r *Repository) EnsureAccount(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, id)
	return err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (models.LedgerRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx, selectRecord, id))
}

func (r *Repository) Mutate(ctx context.Context, id uuid.UUID, fn MutateFunc) (models.LedgerRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.LedgerRecord{}, err
	}
	defer tx.Rollback(ctx)

	rec, err := scanRecord(tx.QueryRow(ctx, selectRecord+" FOR UPDATE", id))
	if err != nil {
		return models.LedgerRecord{}, err
	}
	entry, err := fn(&rec)
	if err != nil {
		return models.LedgerRecord{}, err
	}
	rec.Version++

	// The CHECK constraints on credits and wallet_balance back up the
	// in-process validation.
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET credits = $2, credit_expiry = $3, wallet_balance = $4, auto_order_enabled = $5,
		    active_plan = $6, daily_cost = $7, version = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, rec.Credits, rec.CreditExpiry, rec.WalletBalance, rec.AutoOrderEnabled,
		rec.ActivePlan, rec.DailyCost, rec.Version).Scan(&rec.UpdatedAt)
	if err != nil {
		return models.LedgerRecord{}, err
	}

	if entry != nil {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		entry.AccountID = id
		if err := r.journal.CreateTx(ctx, tx, entry); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return models.LedgerRecord{}, ErrDuplicateReference
			}
			return models.LedgerRecord{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return models.LedgerRecord{}, err
	}
	return rec, nil
}

func (r *Repository) Entries(ctx context.Context, id uuid.UUID, limit int) ([]*models.CreditEntry, error) {
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.journal.ListByAccountID(ctx, id, limit)
}

func (r *Repository) FindEntry(ctx context.Context, id uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error) {
	e, err := r.journal.FindByReference(ctx, id, entryType, ref)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// ListAutoOrderAccounts returns accounts with automatic delivery enabled.
// Accounts without credits stay in the list so an interrupted run can
// finish recording an order whose credits were already taken.
func (r *Repository) ListAutoOrderAccounts(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM accounts
		WHERE auto_order_enabled
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
