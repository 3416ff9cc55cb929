package rentals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-rental-settlement/internal/postgres"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const rentalColumns = `id, tenant_id, customer_id, start_at, end_at, status,
	total_amount::text, deposit_amount::text, currency, payment_ref, payment_status,
	COALESCE(idempotency_key, ''), contract_url, notes, created_at, updated_at`

func (r *Repo) ProductsByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, tenant_id, name, daily_price::text, hourly_price::text, available_quantity
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      Product
			daily  string
			hourly *string
		)
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &daily, &hourly, &p.AvailableQuantity); err != nil {
			return nil, err
		}
		if p.DailyPrice, err = decimal.NewFromString(daily); err != nil {
			return nil, fmt.Errorf("product %s daily price: %w", p.ID, err)
		}
		if hourly != nil {
			h, err := decimal.NewFromString(*hourly)
			if err != nil {
				return nil, fmt.Errorf("product %s hourly price: %w", p.ID, err)
			}
			p.HourlyPrice = &h
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) CommittedQuantity(ctx context.Context, productID string, w Window) (int, error) {
	return committedQuantity(ctx, r.DB, productID, w)
}

func committedQuantity(ctx context.Context, q querier, productID string, w Window) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(ri.quantity), 0)
		FROM rental_items ri
		JOIN rentals r ON r.id = ri.rental_id
		WHERE ri.product_id = $1
		  AND r.status <> 'Cancelled'
		  AND r.start_at < $3 AND r.end_at > $2`, productID, w.Start, w.End).Scan(&n)
	return n, err
}

func (r *Repo) GetRental(ctx context.Context, tenantID, id string) (*Rental, error) {
	return r.findOne(ctx, r.DB, `WHERE tenant_id=$1 AND id=$2`, tenantID, id)
}

func (r *Repo) FindRentalByKey(ctx context.Context, tenantID, key string) (*Rental, error) {
	return r.findOne(ctx, r.DB, `WHERE tenant_id=$1 AND idempotency_key=$2`, tenantID, key)
}

func (r *Repo) FindRentalsByPaymentRef(ctx context.Context, ref string) ([]*Rental, error) {
	return r.findMany(ctx, `WHERE payment_ref=$1 AND payment_ref <> '' ORDER BY tenant_id`, ref)
}

// FindRentalsByKeyPrefix matches keys of the form prefix or prefix:tenant.
func (r *Repo) FindRentalsByKeyPrefix(ctx context.Context, prefix string) ([]*Rental, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return r.findMany(ctx, `WHERE idempotency_key = $1 OR idempotency_key LIKE $2 ORDER BY tenant_id`,
		prefix, escaped+":%")
}

func (r *Repo) findOne(ctx context.Context, q querier, where string, args ...any) (*Rental, error) {
	row := q.QueryRow(ctx, `SELECT `+rentalColumns+` FROM rentals `+where, args...)
	rt, err := scanRental(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRentalNotFound
	}
	if err != nil {
		return nil, err
	}
	if rt.Items, err = loadItems(ctx, q, rt.ID); err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *Repo) findMany(ctx context.Context, where string, args ...any) ([]*Rental, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+rentalColumns+` FROM rentals `+where, args...)
	if err != nil {
		return nil, err
	}
	var out []*Rental
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, rt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rt := range out {
		if rt.Items, err = loadItems(ctx, r.DB, rt.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanRental(row pgx.Row) (*Rental, error) {
	var (
		rt             Rental
		status, ps     string
		total, deposit string
	)
	err := row.Scan(&rt.ID, &rt.TenantID, &rt.CustomerID, &rt.Start, &rt.End, &status,
		&total, &deposit, &rt.Currency, &rt.PaymentRef, &ps,
		&rt.IdempotencyKey, &rt.ContractURL, &rt.Notes, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rt.Status = Status(status)
	rt.PaymentStatus = PaymentStatus(ps)
	if rt.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if rt.DepositAmount, err = decimal.NewFromString(deposit); err != nil {
		return nil, err
	}
	return &rt, nil
}

func loadItems(ctx context.Context, q querier, rentalID string) ([]RentalItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, quantity, unit_price::text, periods, subtotal::text
		FROM rental_items WHERE rental_id=$1 ORDER BY product_id`, rentalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RentalItem
	for rows.Next() {
		var (
			it          RentalItem
			price, subt string
		)
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price, &it.Periods, &subt); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if it.Subtotal, err = decimal.NewFromString(subt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateRental locks the product rows (FOR UPDATE, sorted ids), short-circuits on an
// existing idempotency key, re-checks overlapping capacity and inserts. Two concurrent
// confirmations for the last unit serialize on the product lock; the second observes the
// first's committed row and fails with ErrInsufficientAvailability.
func (r *Repo) CreateRental(ctx context.Context, in *Rental) (*Rental, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	requested := map[string]int{}
	for _, it := range in.Items {
		requested[it.ProductID] += it.Quantity
	}
	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	capacity := make(map[string]int, len(ids))
	for _, id := range ids {
		var stock int
		err := tx.QueryRow(ctx, `SELECT available_quantity FROM products WHERE id=$1 AND tenant_id=$2 FOR UPDATE`,
			id, in.TenantID).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		if err != nil {
			return nil, false, err
		}
		capacity[id] = stock
	}

	if in.IdempotencyKey != "" {
		existing, err := r.findOne(ctx, tx, `WHERE tenant_id=$1 AND idempotency_key=$2`, in.TenantID, in.IdempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if !errors.Is(err, ErrRentalNotFound) {
			return nil, false, err
		}
	}

	w := Window{Start: in.Start, End: in.End}
	for _, id := range ids {
		committed, err := committedQuantity(ctx, tx, id, w)
		if err != nil {
			return nil, false, err
		}
		if committed+requested[id] > capacity[id] {
			return nil, false, fmt.Errorf("%w: product %s requested %d, available %d",
				ErrInsufficientAvailability, id, requested[id], capacity[id]-committed)
		}
	}

	out := *in
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now

	var key any
	if out.IdempotencyKey != "" {
		key = out.IdempotencyKey
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO rentals(id, tenant_id, customer_id, start_at, end_at, status, total_amount, deposit_amount,
		                    currency, payment_ref, payment_status, idempotency_key, contract_url, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9,$10,$11,$12,$13,$14,$15,$15)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
		RETURNING id`,
		out.ID, out.TenantID, out.CustomerID, out.Start, out.End, string(out.Status),
		out.TotalAmount.String(), out.DepositAmount.String(), out.Currency, out.PaymentRef,
		string(out.PaymentStatus), key, out.ContractURL, out.Notes, now,
	).Scan(&out.ID)
	if errors.Is(err, pgx.ErrNoRows) || (postgres.IsUniqueViolation(err) && in.IdempotencyKey != "") {
		// lost the uniqueness race: the winner's row is the rental
		_ = tx.Rollback(ctx)
		existing, err := r.FindRentalByKey(ctx, in.TenantID, in.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	for _, it := range out.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO rental_items(rental_id, product_id, quantity, unit_price, periods, subtotal)
			VALUES ($1,$2,$3,$4::numeric,$5,$6::numeric)`,
			out.ID, it.ProductID, it.Quantity, it.UnitPrice.String(), it.Periods, it.Subtotal.String(),
		); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return &out, false, nil
}

func (r *Repo) UpdateStatus(ctx context.Context, tenantID, id string, from, to Status, payment PaymentStatus) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE rentals SET status=$4, payment_status=$5, updated_at=now()
		WHERE tenant_id=$1 AND id=$2 AND status=$3`,
		tenantID, id, string(from), string(to), string(payment))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) SetContractURL(ctx context.Context, tenantID, id, url string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE rentals SET contract_url=$3, updated_at=now() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, url)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrRentalNotFound
	}
	return nil
}

// ResolveCustomer matches by normalized email within the tenant, then by the snapshot's
// customer id, and otherwise creates a customer from the snapshot.
func (r *Repo) ResolveCustomer(ctx context.Context, tenantID string, snap CustomerSnapshot) (*Customer, error) {
	email := NormalizeEmail(snap.Email)
	if email != "" {
		c, err := r.scanCustomer(ctx, `WHERE tenant_id=$1 AND lower(email)=$2 ORDER BY created_at LIMIT 1`, tenantID, email)
		if err == nil || !errors.Is(err, pgx.ErrNoRows) {
			return c, err
		}
	}
	if snap.CustomerID != "" {
		c, err := r.scanCustomer(ctx, `WHERE tenant_id=$1 AND id=$2`, tenantID, snap.CustomerID)
		if err == nil || !errors.Is(err, pgx.ErrNoRows) {
			return c, err
		}
	}

	c := &Customer{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     email,
		Name:      snap.Name,
		Phone:     snap.Phone,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.DB.Exec(ctx, `INSERT INTO customers(id, tenant_id, email, name, phone, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.TenantID, c.Email, c.Name, c.Phone, c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Repo) GetCustomer(ctx context.Context, tenantID, id string) (*Customer, error) {
	c, err := r.scanCustomer(ctx, `WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	return c, err
}

func (r *Repo) scanCustomer(ctx context.Context, where string, args ...any) (*Customer, error) {
	var c Customer
	err := r.DB.QueryRow(ctx, `SELECT id, tenant_id, email, name, phone, created_at FROM customers `+where, args...).
		Scan(&c.ID, &c.TenantID, &c.Email, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
