package catalog

import (
	"context"

	"github.com/google/uuid"
)

type ServiceRepository interface {
	Create(ctx context.Context, s *BillingService) error
	GetByID(ctx context.Context, id uuid.UUID) (*BillingService, error)
	List(ctx context.Context, filter ServiceFilter, limit, offset int) ([]*BillingService, int, error)
	Update(ctx context.Context, s *BillingService) error
	// ToggleDeleted flips is_deleted and returns the updated row.
	ToggleDeleted(ctx context.Context, id, actorID uuid.UUID) (*BillingService, error)
}
