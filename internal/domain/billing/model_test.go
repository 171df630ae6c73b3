package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBilling_State(t *testing.T) {
	b := &Billing{}
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.IsFinalized())

	now := time.Now()
	b.FinalizedAt = &now
	assert.Equal(t, StateFinalized, b.State())
	assert.True(t, b.IsFinalized())
}

func TestPaymentStatus_Valid(t *testing.T) {
	for _, s := range []PaymentStatus{StatusPending, StatusPaid, StatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, PaymentStatus("refunded").Valid())
	assert.False(t, PaymentStatus("").Valid())
}

func TestBilling_MarshalJSON(t *testing.T) {
	staff := uuid.New()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b := Billing{
		ID:            uuid.New(),
		TotalAmount:   decimal.RequireFromString("150.50"),
		PaymentStatus: StatusPaid,
		FinalizedAt:   &now,
		FinalizedBy:   &staff,
	}

	raw, err := json.Marshal(&b)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "finalized", got["state"])
	assert.Equal(t, "150.5", got["total_amount"])
	assert.Equal(t, "paid", got["payment_status"])
	assert.Equal(t, staff.String(), got["finalized_by"])
	assert.Equal(t, b.ID.String(), got["id"])
}

func TestBilling_MarshalJSON_Open(t *testing.T) {
	raw, err := json.Marshal(Billing{PaymentStatus: StatusPending})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "open", got["state"])
	assert.Nil(t, got["finalized_at"])
}
