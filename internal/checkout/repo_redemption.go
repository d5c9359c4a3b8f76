package checkout

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	LedgerPending  = "PENDING"
	LedgerRedeemed = "REDEEMED"
	LedgerFailed   = "FAILED"
)

type RedemptionRecord struct {
	OrderID   string
	UnitID    string
	Amount    int64
	Status    string // PENDING | REDEEMED | FAILED
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RedemptionRepo is the Postgres-backed RedemptionLedger. One row per order.
type RedemptionRepo struct{ DB *pgxpool.Pool }

const redemptionSchema = `
CREATE TABLE IF NOT EXISTS cashback_redemptions (
	order_id   TEXT PRIMARY KEY,
	unit_id    TEXT NOT NULL,
	amount     BIGINT NOT NULL CHECK (amount >= 0),
	status     TEXT NOT NULL,
	attempts   INT NOT NULL DEFAULT 1,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (r *RedemptionRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, redemptionSchema)
	return err
}

// Begin records an attempt. A row that already REDEEMED is left untouched.
func (r *RedemptionRepo) Begin(ctx context.Context, orderID, unitID string, amount int64) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cashback_redemptions(order_id, unit_id, amount, status)
		VALUES ($1, $2, $3, 'PENDING')
		ON CONFLICT (order_id) DO UPDATE
		SET status = 'PENDING', attempts = cashback_redemptions.attempts + 1, updated_at = now()
		WHERE cashback_redemptions.status <> 'REDEEMED'`,
		orderID, unitID, amount)
	return err
}

func (r *RedemptionRepo) MarkRedeemed(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE cashback_redemptions SET status = 'REDEEMED', last_error = '', updated_at = now()
		WHERE order_id = $1`, orderID)
	return err
}

func (r *RedemptionRepo) MarkFailed(ctx context.Context, orderID, reason string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE cashback_redemptions SET status = 'FAILED', last_error = $2, updated_at = now()
		WHERE order_id = $1 AND status <> 'REDEEMED'`, orderID, reason)
	return err
}

func (r *RedemptionRepo) Get(ctx context.Context, orderID string) (RedemptionRecord, error) {
	var rec RedemptionRecord
	err := r.DB.QueryRow(ctx, `
		SELECT order_id, unit_id, amount, status, attempts, last_error, created_at, updated_at
		FROM cashback_redemptions WHERE order_id = $1`, orderID).
		Scan(&rec.OrderID, &rec.UnitID, &rec.Amount, &rec.Status, &rec.Attempts, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

// ListFailed returns FAILED redemptions oldest first.
func (r *RedemptionRepo) ListFailed(ctx context.Context, limit int) ([]RedemptionRecord, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT order_id, unit_id, amount, status, attempts, last_error, created_at, updated_at
		FROM cashback_redemptions WHERE status = 'FAILED'
		ORDER BY updated_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RedemptionRecord
	for rows.Next() {
		var rec RedemptionRecord
		if err := rows.Scan(&rec.OrderID, &rec.UnitID, &rec.Amount, &rec.Status, &rec.Attempts, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
