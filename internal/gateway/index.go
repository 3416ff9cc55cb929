package gateway

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-rental-settlement/internal/postgres"
)

// PGIndex stores the Razorpay id mapping in the payment_intents table.
type PGIndex struct{ DB *pgxpool.Pool }

var _ IntentIndex = (*PGIndex)(nil)

func (x *PGIndex) Put(ctx context.Context, in Intent) error {
	_, err := x.DB.Exec(ctx, `
		INSERT INTO payment_intents (id, tenant_id, provider_ref, amount, deposit, currency, status, expires_at)
		VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6,$7,$8)
		ON CONFLICT (provider_ref) DO NOTHING`,
		in.ID, in.TenantID, in.ProviderRef, in.Amount.String(), in.Deposit.String(),
		in.Currency, string(in.Status), in.ExpiresAt)
	if postgres.IsUniqueViolation(err) {
		// same local id means the same processor order
		return nil
	}
	return err
}

func (x *PGIndex) Get(ctx context.Context, id string) (*Intent, error) {
	var (
		in              Intent
		amount, deposit string
		status          string
	)
	err := x.DB.QueryRow(ctx, `
		SELECT id, tenant_id, provider_ref, amount::text, deposit::text, currency, status, expires_at
		FROM payment_intents WHERE id=$1`, id).
		Scan(&in.ID, &in.TenantID, &in.ProviderRef, &amount, &deposit, &in.Currency, &status, &in.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, err
	}
	if in.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if in.Deposit, err = decimal.NewFromString(deposit); err != nil {
		return nil, err
	}
	in.Status = Status(status)
	return &in, nil
}

func (x *PGIndex) SetStatus(ctx context.Context, id string, s Status) error {
	tag, err := x.DB.Exec(ctx, `UPDATE payment_intents SET status=$2 WHERE id=$1`, id, string(s))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}
