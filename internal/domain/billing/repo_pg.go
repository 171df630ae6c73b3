package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Billing Repository ===========

type billingRepoPG struct{ pool *pgxpool.Pool }

func NewBillingRepoPG(pool *pgxpool.Pool) BillingRepository { return &billingRepoPG{pool: pool} }

func (r *billingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const billingCols = `id, patient_id, total_amount, payment_status, finalized_at, finalized_by,
	is_deleted, created_by, updated_by, created_at, updated_at`

func scanBilling(row pgx.Row) (*Billing, error) {
	var b Billing
	err := row.Scan(&b.ID, &b.PatientID, &b.TotalAmount, &b.PaymentStatus, &b.FinalizedAt, &b.FinalizedBy,
		&b.IsDeleted, &b.CreatedBy, &b.UpdatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &b, nil
}

func scanBillings(rows pgx.Rows) ([]*Billing, error) {
	defer rows.Close()
	var out []*Billing
	for rows.Next() {
		b, err := scanBilling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *billingRepoPG) Create(ctx context.Context, b *Billing) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing (id, patient_id, total_amount, payment_status, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING is_deleted, created_at, updated_at`,
		b.ID, b.PatientID, b.TotalAmount, b.PaymentStatus, b.CreatedBy, b.UpdatedBy,
	).Scan(&b.IsDeleted, &b.CreatedAt, &b.UpdatedAt)
}

func (r *billingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Billing, error) {
	return scanBilling(r.conn(ctx).QueryRow(ctx, `SELECT `+billingCols+` FROM billing WHERE id = $1`, id))
}

func (r *billingRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Billing, error) {
	return scanBilling(r.conn(ctx).QueryRow(ctx, `SELECT `+billingCols+` FROM billing WHERE id = $1 FOR UPDATE`, id))
}

func (r *billingRepoPG) GetForShare(ctx context.Context, id uuid.UUID) (*Billing, error) {
	return scanBilling(r.conn(ctx).QueryRow(ctx, `SELECT `+billingCols+` FROM billing WHERE id = $1 FOR SHARE`, id))
}

func (r *billingRepoPG) List(ctx context.Context, filter BillingFilter, limit, offset int) ([]*Billing, int, error) {
	var where []string
	var args []interface{}
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = false")
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		where = append(where, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count billings: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM billing%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		billingCols, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list billings: %w", err)
	}
	out, err := scanBillings(rows)
	return out, total, err
}

func (r *billingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Billing, int, error) {
	return r.List(ctx, BillingFilter{PatientID: &patientID}, limit, offset)
}

func (r *billingRepoPG) ToggleDeleted(ctx context.Context, id, actorID uuid.UUID) (*Billing, error) {
	return scanBilling(r.conn(ctx).QueryRow(ctx, `
		UPDATE billing
		SET is_deleted = NOT is_deleted, updated_by = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+billingCols, id, actorID))
}

func (r *billingRepoPG) MarkFinalized(ctx context.Context, id uuid.UUID, total decimal.Decimal, actorID uuid.UUID) (*Billing, error) {
	return scanBilling(r.conn(ctx).QueryRow(ctx, `
		UPDATE billing
		SET total_amount = $2, payment_status = $3, finalized_at = NOW(),
			finalized_by = $4, updated_by = $4, updated_at = NOW()
		WHERE id = $1 AND finalized_at IS NULL AND is_deleted = false
		RETURNING `+billingCols, id, total, StatusPaid, actorID))
}

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository { return &itemRepoPG{pool: pool} }

func (r *itemRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const itemCols = `id, billing_id, service_id, quantity, unit_price, subtotal, is_deleted,
	created_by, updated_by, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.BillingID, &it.ServiceID, &it.Quantity, &it.UnitPrice, &it.Subtotal, &it.IsDeleted,
		&it.CreatedBy, &it.UpdatedBy, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &it, nil
}

func (r *itemRepoPG) Create(ctx context.Context, it *Item) error {
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing_item (id, billing_id, service_id, quantity, unit_price, subtotal, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING is_deleted, created_at, updated_at`,
		it.ID, it.BillingID, it.ServiceID, it.Quantity, it.UnitPrice, it.Subtotal, it.CreatedBy, it.UpdatedBy,
	).Scan(&it.IsDeleted, &it.CreatedAt, &it.UpdatedAt)
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM billing_item WHERE id = $1`, id))
}

func (r *itemRepoPG) ListByBilling(ctx context.Context, billingID uuid.UUID) ([]*Item, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM billing_item WHERE billing_id = $1 ORDER BY created_at, id`, billingID)
	if err != nil {
		return nil, fmt.Errorf("list billing items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *itemRepoPG) Update(ctx context.Context, it *Item) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE billing_item
		SET quantity = $2, unit_price = $3, subtotal = $4, updated_by = $5, updated_at = NOW()
		WHERE id = $1 AND is_deleted = false
		RETURNING updated_at`,
		it.ID, it.Quantity, it.UnitPrice, it.Subtotal, it.UpdatedBy,
	).Scan(&it.UpdatedAt)
	return db.NotFound(err)
}

func (r *itemRepoPG) ToggleDeleted(ctx context.Context, id, actorID uuid.UUID) (*Item, error) {
	return scanItem(r.conn(ctx).QueryRow(ctx, `
		UPDATE billing_item
		SET is_deleted = NOT is_deleted, updated_by = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+itemCols, id, actorID))
}

func (r *itemRepoPG) Totals(ctx context.Context, billingID uuid.UUID) (ItemTotals, error) {
	var t ItemTotals
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(subtotal), 0)
		FROM billing_item
		WHERE billing_id = $1 AND is_deleted = false`, billingID,
	).Scan(&t.Count, &t.Sum)
	if err != nil {
		return ItemTotals{}, fmt.Errorf("aggregate billing items: %w", err)
	}
	return t, nil
}
