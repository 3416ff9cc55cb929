package holds

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repo) Insert(ctx context.Context, h Hold) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO reservation_holds
			(id, tenant_id, product_id, quantity, start_at, end_at, customer_id, session_id, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		h.ID, h.TenantID, h.ProductID, h.Quantity, h.Start, h.End,
		nullable(h.CustomerID), nullable(h.SessionID), h.CreatedAt, h.ExpiresAt)
	return err
}

// Delete removes the row whatever its state but only reports live holds, so deleting an
// expired hold behaves like deleting a missing one.
func (r *Repo) Delete(ctx context.Context, tenantID, id string, now time.Time) (bool, error) {
	var expiresAt time.Time
	err := r.DB.QueryRow(ctx, `
		DELETE FROM reservation_holds WHERE tenant_id=$1 AND id=$2 RETURNING expires_at`,
		tenantID, id).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return expiresAt.After(now), nil
}

func (r *Repo) Active(ctx context.Context, tenantID, productID string, now time.Time) ([]Hold, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, product_id, quantity, start_at, end_at,
		       COALESCE(customer_id, ''), COALESCE(session_id, ''), created_at, expires_at
		FROM reservation_holds
		WHERE tenant_id=$1 AND product_id=$2 AND expires_at > $3
		ORDER BY created_at`, tenantID, productID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Hold
	for rows.Next() {
		var h Hold
		if err := rows.Scan(&h.ID, &h.TenantID, &h.ProductID, &h.Quantity, &h.Start, &h.End,
			&h.CustomerID, &h.SessionID, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM reservation_holds WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
