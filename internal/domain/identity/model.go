package identity

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the subset of the patient record the billing core depends on.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	MRN       string    `db:"mrn" json:"mrn"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
