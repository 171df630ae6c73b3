package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingRepository persists billings. The lock variants must be called
// with a transaction bound to ctx (see db.TxManager).
type BillingRepository interface {
	Create(ctx context.Context, b *Billing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Billing, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Billing, error)
	GetForShare(ctx context.Context, id uuid.UUID) (*Billing, error)
	List(ctx context.Context, filter BillingFilter, limit, offset int) ([]*Billing, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Billing, int, error)
	ToggleDeleted(ctx context.Context, id, actorID uuid.UUID) (*Billing, error)
	// MarkFinalized sets the total and finalization fields only if the row
	// is still open and not deleted. It returns db.ErrNotFound when no row
	// matched.
	MarkFinalized(ctx context.Context, id uuid.UUID, total decimal.Decimal, actorID uuid.UUID) (*Billing, error)
}

type ItemRepository interface {
	Create(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	ListByBilling(ctx context.Context, billingID uuid.UUID) ([]*Item, error)
	Update(ctx context.Context, it *Item) error
	ToggleDeleted(ctx context.Context, id, actorID uuid.UUID) (*Item, error)
	// Totals counts and sums the non-deleted items of a billing.
	Totals(ctx context.Context, billingID uuid.UUID) (ItemTotals, error)
}
