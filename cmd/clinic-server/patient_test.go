package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/apperr"
)

type memoryPatients map[uuid.UUID]*identity.Patient

func (m memoryPatients) Create(_ context.Context, p *identity.Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	m[p.ID] = &cp
	return nil
}

func (m memoryPatients) GetByID(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	return m[id], nil
}

func TestRegisterPatient(t *testing.T) {
	repo := memoryPatients{}
	dir := identity.NewDirectory(repo)
	var out bytes.Buffer

	p := &identity.Patient{MRN: "MRN-100", FirstName: "Grace", LastName: "Hopper", Active: true}
	require.NoError(t, registerPatient(context.Background(), dir, p, &out))

	require.Contains(t, repo, p.ID)
	assert.Contains(t, out.String(), "Grace Hopper (MRN-100)")
	assert.Contains(t, out.String(), p.ID.String())

	got, err := dir.ResolveActivePatient(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "MRN-100", got.MRN)
}

func TestRegisterPatient_MissingFields(t *testing.T) {
	repo := memoryPatients{}
	err := registerPatient(context.Background(), identity.NewDirectory(repo), &identity.Patient{FirstName: "A"}, &bytes.Buffer{})
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))
	assert.Empty(t, repo)
}

func TestPatientCmd_Flags(t *testing.T) {
	cmd := patientCmd()
	register, _, err := cmd.Find([]string{"register"})
	require.NoError(t, err)
	for _, name := range []string{"mrn", "first-name", "last-name", "inactive"} {
		assert.NotNil(t, register.Flags().Lookup(name), name)
	}
}
