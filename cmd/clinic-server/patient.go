package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/db"
)

// patientCmd seeds the patient table. Patient management proper lives in
// the clinic's registration system; billing only needs the rows to exist.
func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Seed patient records",
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a patient so billings can be opened for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			mrn, _ := cmd.Flags().GetString("mrn")
			first, _ := cmd.Flags().GetString("first-name")
			last, _ := cmd.Flags().GetString("last-name")
			inactive, _ := cmd.Flags().GetBool("inactive")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := db.NewPool(ctx, db.PoolOptions{
				DatabaseURL: cfg.DatabaseURL,
				MaxConns:    2,
				Schema:      cfg.DBSchema,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			dir := identity.NewDirectory(identity.NewPatientRepoPG(pool))
			p := &identity.Patient{MRN: mrn, FirstName: first, LastName: last, Active: !inactive}
			return registerPatient(ctx, dir, p, cmd.OutOrStdout())
		},
	}
	registerCmd.Flags().String("mrn", "", "Medical record number (unique)")
	registerCmd.Flags().String("first-name", "", "Given name")
	registerCmd.Flags().String("last-name", "", "Family name")
	registerCmd.Flags().Bool("inactive", false, "Register the patient as inactive")

	cmd.AddCommand(registerCmd)
	return cmd
}

func registerPatient(ctx context.Context, dir *identity.Directory, p *identity.Patient, out io.Writer) error {
	if err := dir.RegisterPatient(ctx, p); err != nil {
		return fmt.Errorf("register patient: %w", err)
	}
	fmt.Fprintf(out, "Registered patient %s (%s) with id %s\n", p.FullName(), p.MRN, p.ID)
	return nil
}
