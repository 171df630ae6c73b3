package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingService is a priced entry in the clinic's service catalog.
type BillingService struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Description  *string         `json:"description,omitempty"`
	DefaultPrice decimal.Decimal `json:"default_price"`
	Category     *string         `json:"category,omitempty"`
	IsDeleted    bool            `json:"is_deleted"`
	CreatedBy    uuid.UUID       `json:"created_by"`
	UpdatedBy    uuid.UUID       `json:"updated_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CreateServiceInput struct {
	Name         string
	Description  *string
	DefaultPrice decimal.Decimal
	Category     *string
}

// ServicePatch updates only the non-nil fields.
type ServicePatch struct {
	Name         *string
	Description  *string
	DefaultPrice *decimal.Decimal
	Category     *string
}

func (p ServicePatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.DefaultPrice == nil && p.Category == nil
}

type ServiceFilter struct {
	Category       string
	IncludeDeleted bool
}
