package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPaid    PaymentStatus = "paid"
	// StatusCancelled is accepted by the store but no operation sets it yet.
	StatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// State is the lifecycle position of a billing. It is derived from
// FinalizedAt and never stored.
type State string

const (
	StateOpen      State = "open"
	StateFinalized State = "finalized"
)

// Billing is the root aggregate: one patient's bill and its line items.
// Once FinalizedAt is set the record only changes through soft-delete
// toggling.
type Billing struct {
	ID            uuid.UUID       `json:"id"`
	PatientID     uuid.UUID       `json:"patient_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	FinalizedAt   *time.Time      `json:"finalized_at"`
	FinalizedBy   *uuid.UUID      `json:"finalized_by"`
	IsDeleted     bool            `json:"is_deleted"`
	CreatedBy     uuid.UUID       `json:"created_by"`
	UpdatedBy     uuid.UUID       `json:"updated_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (b *Billing) State() State {
	if b.FinalizedAt != nil {
		return StateFinalized
	}
	return StateOpen
}

func (b *Billing) IsFinalized() bool { return b.FinalizedAt != nil }

// MarshalJSON adds the derived state to the stored fields.
func (b Billing) MarshalJSON() ([]byte, error) {
	type stored Billing
	return json.Marshal(struct {
		stored
		State State `json:"state"`
	}{stored(b), b.State()})
}

// Item is one charge line on a billing. UnitPrice is captured when the
// item is added, so later catalog price changes do not affect it.
type Item struct {
	ID        uuid.UUID       `json:"id"`
	BillingID uuid.UUID       `json:"billing_id"`
	ServiceID uuid.UUID       `json:"service_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	IsDeleted bool            `json:"is_deleted"`
	CreatedBy uuid.UUID       `json:"created_by"`
	UpdatedBy uuid.UUID       `json:"updated_by"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type AddItemInput struct {
	ServiceID uuid.UUID
	Quantity  int
	// UnitPrice overrides the catalog default price when set.
	UnitPrice *decimal.Decimal
}

type UpdateItemInput struct {
	Quantity  *int
	UnitPrice *decimal.Decimal
}

type BillingFilter struct {
	PaymentStatus  PaymentStatus
	PatientID      *uuid.UUID
	IncludeDeleted bool
}

// ItemTotals aggregates the non-deleted items of a billing.
type ItemTotals struct {
	Count int
	Sum   decimal.Decimal
}
