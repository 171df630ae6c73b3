package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type serviceRepoPG struct{ pool *pgxpool.Pool }

func NewServiceRepoPG(pool *pgxpool.Pool) ServiceRepository { return &serviceRepoPG{pool: pool} }

func (r *serviceRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const serviceCols = `id, name, description, default_price, category, is_deleted,
	created_by, updated_by, created_at, updated_at`

func scanService(row pgx.Row) (*BillingService, error) {
	var s BillingService
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.DefaultPrice, &s.Category, &s.IsDeleted,
		&s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, db.NotFound(err)
	}
	return &s, nil
}

func (r *serviceRepoPG) Create(ctx context.Context, s *BillingService) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing_service (id, name, description, default_price, category, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING is_deleted, created_at, updated_at`,
		s.ID, s.Name, s.Description, s.DefaultPrice, s.Category, s.CreatedBy, s.UpdatedBy,
	).Scan(&s.IsDeleted, &s.CreatedAt, &s.UpdatedAt)
}

func (r *serviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*BillingService, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceCols+` FROM billing_service WHERE id = $1`, id))
}

func (r *serviceRepoPG) List(ctx context.Context, filter ServiceFilter, limit, offset int) ([]*BillingService, int, error) {
	var where []string
	var args []interface{}
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = false")
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_service`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count billing services: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM billing_service%s ORDER BY name LIMIT $%d OFFSET $%d`,
		serviceCols, clause, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list billing services: %w", err)
	}
	defer rows.Close()

	var out []*BillingService
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *serviceRepoPG) Update(ctx context.Context, s *BillingService) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE billing_service
		SET name = $2, description = $3, default_price = $4, category = $5,
			updated_by = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Name, s.Description, s.DefaultPrice, s.Category, s.UpdatedBy,
	).Scan(&s.UpdatedAt)
	return db.NotFound(err)
}

func (r *serviceRepoPG) ToggleDeleted(ctx context.Context, id, actorID uuid.UUID) (*BillingService, error) {
	return scanService(r.conn(ctx).QueryRow(ctx, `
		UPDATE billing_service
		SET is_deleted = NOT is_deleted, updated_by = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+serviceCols, id, actorID))
}
