package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/pkg/money"
)

// PatientResolver is the slice of the patient directory billing needs.
type PatientResolver interface {
	ResolveActivePatient(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
}

// ServiceLookup resolves catalog entries for new line items. Lookups must
// read the store, not a cache, so a soft-delete is seen at once.
type ServiceLookup interface {
	ResolveService(ctx context.Context, id uuid.UUID) (*catalog.BillingService, error)
}

// FinalizationRecorder counts finalize outcomes.
type FinalizationRecorder interface {
	RecordFinalization(outcome string)
}

// Finalization failure messages.
const (
	msgFinalizeDeleted   = "cannot finalize a deleted billing"
	msgAlreadyFinalized  = "billing is already finalized"
	msgNoItems           = "cannot finalize a billing with no items"
	msgNoChargeableTotal = "cannot finalize with no chargeable amount"
	msgTotalTooLarge     = "billing total exceeds the maximum amount"
)

// MaxQuantity bounds a single line item.
const MaxQuantity = 1_000_000

type Service struct {
	billings BillingRepository
	items    ItemRepository
	patients PatientResolver
	catalog  ServiceLookup
	tx       db.TxRunner
	metrics  FinalizationRecorder
}

func NewService(billings BillingRepository, items ItemRepository, patients PatientResolver, services ServiceLookup, tx db.TxRunner) *Service {
	return &Service{billings: billings, items: items, patients: patients, catalog: services, tx: tx}
}

// SetMetrics attaches an optional outcome recorder.
func (s *Service) SetMetrics(m FinalizationRecorder) {
	s.metrics = m
}

func requireActor(actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return apperr.Unauthenticated("authenticated staff member required")
	}
	return nil
}

var errBillingNotFound = apperr.NotFound("billing not found")

// -- Ledger --

func (s *Service) OpenBilling(ctx context.Context, patientID, actorID uuid.UUID) (*Billing, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if patientID == uuid.Nil {
		return nil, apperr.InvalidReference("patient_id must reference an active patient")
	}
	if _, err := s.patients.ResolveActivePatient(ctx, patientID); err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound, apperr.KindInvalidArgument:
			return nil, apperr.InvalidReference("patient_id must reference an active patient")
		}
		return nil, fmt.Errorf("open billing: %w", err)
	}

	b := &Billing{
		PatientID:     patientID,
		TotalAmount:   money.Zero,
		PaymentStatus: StatusPending,
		CreatedBy:     actorID,
		UpdatedBy:     actorID,
	}
	if err := s.billings.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create billing: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("billing_id", b.ID.String()).
		Str("patient_id", patientID.String()).
		Str("staff_id", actorID.String()).
		Msg("billing opened")
	return b, nil
}

func (s *Service) GetBilling(ctx context.Context, id uuid.UUID) (*Billing, error) {
	b, err := s.billings.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errBillingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get billing %s: %w", id, err)
	}
	return b, nil
}

func (s *Service) ListBillings(ctx context.Context, filter BillingFilter, limit, offset int) ([]*Billing, int, error) {
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, 0, apperr.InvalidArgument(fmt.Sprintf("invalid payment_status %q", filter.PaymentStatus))
	}
	out, total, err := s.billings.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list billings: %w", err)
	}
	if out == nil {
		out = []*Billing{}
	}
	return out, total, nil
}

// ListBillingsForPatient returns the patient's non-deleted billings, newest
// first. A patient without any is reported as NotFound.
func (s *Service) ListBillingsForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Billing, int, error) {
	out, total, err := s.billings.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list billings for patient %s: %w", patientID, err)
	}
	if total == 0 {
		return nil, 0, apperr.NotFound("no billings found for patient")
	}
	if out == nil {
		out = []*Billing{}
	}
	return out, total, nil
}

// ToggleDeleteBilling flips the soft-delete flag. It is allowed on
// finalized billings.
func (s *Service) ToggleDeleteBilling(ctx context.Context, id, actorID uuid.UUID) (*Billing, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	b, err := s.billings.ToggleDeleted(ctx, id, actorID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, errBillingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("toggle billing %s: %w", id, err)
	}

	zerolog.Ctx(ctx).Info().
		Str("billing_id", id.String()).
		Bool("is_deleted", b.IsDeleted).
		Str("staff_id", actorID.String()).
		Msg("billing delete toggled")
	return b, nil
}

// -- Finalization --

// FinalizeBilling recomputes the total from the non-deleted items and moves
// the billing into its terminal state. All checks and the update run in one
// transaction holding the billing row lock.
func (s *Service) FinalizeBilling(ctx context.Context, billingID, actorID uuid.UUID) (*Billing, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var finalized *Billing
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		b, err := s.billings.GetForUpdate(ctx, billingID)
		if errors.Is(err, db.ErrNotFound) {
			return errBillingNotFound
		}
		if err != nil {
			return fmt.Errorf("lock billing: %w", err)
		}
		if b.IsDeleted {
			return apperr.InvalidState(msgFinalizeDeleted)
		}
		if b.IsFinalized() {
			return apperr.InvalidState(msgAlreadyFinalized)
		}

		totals, err := s.items.Totals(ctx, billingID)
		if err != nil {
			return fmt.Errorf("sum billing items: %w", err)
		}
		if totals.Count == 0 {
			return apperr.InvalidState(msgNoItems)
		}
		if !totals.Sum.IsPositive() {
			return apperr.InvalidState(msgNoChargeableTotal)
		}
		if !money.InRange(totals.Sum) {
			return apperr.InvalidState(msgTotalTooLarge)
		}

		updated, err := s.billings.MarkFinalized(ctx, billingID, money.Round(totals.Sum), actorID)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.Conflict("billing was modified concurrently")
		}
		if err != nil {
			return fmt.Errorf("mark billing finalized: %w", err)
		}
		finalized = updated
		return nil
	})

	s.recordFinalization(ctx, billingID, actorID, err)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return nil, fmt.Errorf("finalize billing %s: %w", billingID, err)
		}
		return nil, err
	}
	return finalized, nil
}

func (s *Service) recordFinalization(ctx context.Context, billingID, actorID uuid.UUID, err error) {
	outcome := telemetry.OutcomeFinalized
	switch apperr.KindOf(err) {
	case "":
	case apperr.KindInvalidState:
		outcome = telemetry.OutcomeInvalidState
	case apperr.KindConflict:
		outcome = telemetry.OutcomeConflict
	case apperr.KindNotFound:
		outcome = telemetry.OutcomeNotFound
	default:
		outcome = telemetry.OutcomeError
	}
	if s.metrics != nil {
		s.metrics.RecordFinalization(outcome)
	}

	evt := zerolog.Ctx(ctx).Info()
	if outcome == telemetry.OutcomeError {
		evt = zerolog.Ctx(ctx).Error().Err(err)
	} else if err != nil {
		evt = evt.Str("reason", apperr.Message(err))
	}
	evt.Str("billing_id", billingID.String()).
		Str("staff_id", actorID.String()).
		Str("outcome", outcome).
		Msg("billing finalization")
}

// -- Line items --

// checkMutable rejects item changes once the parent billing is finalized
// or soft-deleted.
func checkMutable(b *Billing) error {
	if b.IsDeleted {
		return apperr.PreconditionFailed("billing is deleted; its items cannot be changed")
	}
	if b.IsFinalized() {
		return apperr.PreconditionFailed("billing is finalized; its items cannot be changed")
	}
	return nil
}

// lockOpenBilling takes a shared lock on the billing so a concurrent
// finalize waits for the item change, or the item change sees the
// finalized row.
func (s *Service) lockOpenBilling(ctx context.Context, billingID uuid.UUID) error {
	b, err := s.billings.GetForShare(ctx, billingID)
	if errors.Is(err, db.ErrNotFound) {
		return errBillingNotFound
	}
	if err != nil {
		return fmt.Errorf("lock billing: %w", err)
	}
	return checkMutable(b)
}

func validateQuantity(q int) error {
	if q < 1 {
		return apperr.InvalidArgument("quantity must be at least 1")
	}
	if q > MaxQuantity {
		return apperr.InvalidArgument(fmt.Sprintf("quantity must be at most %d", MaxQuantity))
	}
	return nil
}

func validateSubtotal(it *Item) error {
	if !money.InRange(it.Subtotal) {
		return apperr.InvalidArgument("subtotal exceeds the maximum amount")
	}
	return nil
}

func (s *Service) AddItem(ctx context.Context, billingID uuid.UUID, in AddItemInput, actorID uuid.UUID) (*Item, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}
	if in.UnitPrice != nil {
		if err := money.Validate(*in.UnitPrice); err != nil {
			return nil, apperr.InvalidArgument("unit_price: " + err.Error())
		}
	}
	if in.ServiceID == uuid.Nil {
		return nil, apperr.InvalidReference("service_id must reference an active billing service")
	}

	svc, err := s.catalog.ResolveService(ctx, in.ServiceID)
	if apperr.KindOf(err) == apperr.KindNotFound || (err == nil && svc.IsDeleted) {
		return nil, apperr.InvalidReference("service_id must reference an active billing service")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup billing service: %w", err)
	}

	unitPrice := svc.DefaultPrice
	if in.UnitPrice != nil {
		unitPrice = *in.UnitPrice
	}
	unitPrice = money.Round(unitPrice)

	it := &Item{
		BillingID: billingID,
		ServiceID: svc.ID,
		Quantity:  in.Quantity,
		UnitPrice: unitPrice,
		Subtotal:  money.Times(unitPrice, in.Quantity),
		CreatedBy: actorID,
		UpdatedBy: actorID,
	}
	if err := validateSubtotal(it); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockOpenBilling(ctx, billingID); err != nil {
			return err
		}
		if err := s.items.Create(ctx, it); err != nil {
			return fmt.Errorf("create billing item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("billing_id", billingID.String()).
		Str("item_id", it.ID.String()).
		Str("subtotal", it.Subtotal.StringFixed(money.Scale)).
		Msg("billing item added")
	return it, nil
}

// UpdateItem changes quantity and/or unit price and recomputes the subtotal.
func (s *Service) UpdateItem(ctx context.Context, itemID uuid.UUID, in UpdateItemInput, actorID uuid.UUID) (*Item, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if in.Quantity == nil && in.UnitPrice == nil {
		return nil, apperr.InvalidArgument("no fields to update")
	}
	if in.Quantity != nil {
		if err := validateQuantity(*in.Quantity); err != nil {
			return nil, err
		}
	}
	if in.UnitPrice != nil {
		if err := money.Validate(*in.UnitPrice); err != nil {
			return nil, apperr.InvalidArgument("unit_price: " + err.Error())
		}
	}

	var updated *Item
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		it, err := s.getItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := s.lockOpenBilling(ctx, it.BillingID); err != nil {
			return err
		}
		if it.IsDeleted {
			return apperr.PreconditionFailed("billing item is deleted")
		}

		if in.Quantity != nil {
			it.Quantity = *in.Quantity
		}
		if in.UnitPrice != nil {
			it.UnitPrice = money.Round(*in.UnitPrice)
		}
		it.Subtotal = money.Times(it.UnitPrice, it.Quantity)
		it.UpdatedBy = actorID
		if err := validateSubtotal(it); err != nil {
			return err
		}

		err = s.items.Update(ctx, it)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.PreconditionFailed("billing item is deleted")
		}
		if err != nil {
			return fmt.Errorf("update billing item: %w", err)
		}
		updated = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) ToggleDeleteItem(ctx context.Context, itemID, actorID uuid.UUID) (*Item, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}

	var toggled *Item
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		it, err := s.getItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := s.lockOpenBilling(ctx, it.BillingID); err != nil {
			return err
		}
		toggled, err = s.items.ToggleDeleted(ctx, itemID, actorID)
		if err != nil {
			return fmt.Errorf("toggle billing item: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("item_id", itemID.String()).
		Bool("is_deleted", toggled.IsDeleted).
		Msg("billing item delete toggled")
	return toggled, nil
}

// ListItems returns every item of the billing, deleted ones included.
func (s *Service) ListItems(ctx context.Context, billingID uuid.UUID) ([]*Item, error) {
	if _, err := s.GetBilling(ctx, billingID); err != nil {
		return nil, err
	}
	items, err := s.items.ListByBilling(ctx, billingID)
	if err != nil {
		return nil, fmt.Errorf("list billing items: %w", err)
	}
	if items == nil {
		items = []*Item{}
	}
	return items, nil
}

func (s *Service) getItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	it, err := s.items.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("billing item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get billing item %s: %w", id, err)
	}
	return it, nil
}
