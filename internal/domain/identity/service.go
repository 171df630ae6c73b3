package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// Directory resolves patient references for other domains.
type Directory struct {
	patients PatientRepository
}

func NewDirectory(patients PatientRepository) *Directory {
	return &Directory{patients: patients}
}

// ResolveActivePatient returns the patient with id when it exists and is
// active. Missing and inactive patients both yield apperr.NotFound.
func (d *Directory) ResolveActivePatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	if id == uuid.Nil {
		return nil, apperr.InvalidArgument("patient_id is required")
	}
	p, err := d.patients.GetByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("patient not found")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve patient %s: %w", id, err)
	}
	if !p.Active {
		return nil, apperr.NotFound("patient is not active")
	}
	return p, nil
}

// RegisterPatient stores a new patient. The `patient register` command uses
// it for seeding; patient management lives outside this service.
func (d *Directory) RegisterPatient(ctx context.Context, p *Patient) error {
	if p.MRN == "" {
		return apperr.InvalidArgument("mrn is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return apperr.InvalidArgument("first_name and last_name are required")
	}
	return d.patients.Create(ctx, p)
}
