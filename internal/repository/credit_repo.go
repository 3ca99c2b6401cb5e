package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tiffinbox/backend/internal/models"
)

// CreditRepo stores the append-only credit_ledger journal. Rows are never
// updated or deleted.
type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

const creditColumns = `id, account_id, entry_type, pool, amount, balance_after, reference_id, created_at`

// CreateTx inserts a journal entry inside the given transaction. A repeated
// (account_id, entry_type, reference_id) fails with a unique violation.
func (r *CreditRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, account_id, entry_type, pool, amount, balance_after, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, c.ID, c.AccountID, c.EntryType, c.Pool, c.Amount, c.BalanceAfter, c.ReferenceID).Scan(&c.CreatedAt)
}

// FindByReference returns pgx.ErrNoRows when nothing was applied under ref.
func (r *CreditRepo) FindByReference(ctx context.Context, accountID uuid.UUID, entryType string, ref uuid.UUID) (*models.CreditEntry, error) {
	return scanCredit(r.pool.QueryRow(ctx, `
		SELECT `+creditColumns+` FROM credit_ledger
		WHERE account_id = $1 AND entry_type = $2 AND reference_id = $3
	`, accountID, entryType, ref))
}

// ListByAccountID returns the newest entries first. limit <= 0 means all.
func (r *CreditRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.CreditEntry, error) {
	q := `SELECT ` + creditColumns + ` FROM credit_ledger WHERE account_id = $1 ORDER BY created_at DESC, id`
	args := []any{accountID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.CreditEntry{}
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func scanCredit(row pgx.Row) (*models.CreditEntry, error) {
	var c models.CreditEntry
	if err := row.Scan(&c.ID, &c.AccountID, &c.EntryType, &c.Pool, &c.Amount, &c.BalanceAfter, &c.ReferenceID, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
