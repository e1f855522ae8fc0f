package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	uniquePgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "uq_transactions_active_vehicle",
		Message:        `duplicate key value violates unique constraint "uq_transactions_active_vehicle"`,
	}
	foreignKeyPgErr := &pgconn.PgError{Code: "23503", Message: "violates foreign key constraint"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil error", nil, "", false},
		{"pg unique violation", uniquePgErr, "", true},
		{"pg unique violation wrapped", fmt.Errorf("create transaction: %w", uniquePgErr), "", true},
		{"pg unique violation matching constraint", uniquePgErr, "uq_transactions_active_vehicle", true},
		{"pg unique violation other constraint", uniquePgErr, "uq_transactions_provider_ref", false},
		{"pg foreign key violation", foreignKeyPgErr, "", false},
		{"sqlite unique message", errors.New("UNIQUE constraint failed: transactions.vehicle_id"), "", true},
		{"plain postgres message", errors.New(`duplicate key value violates unique constraint "uq"`), "", true},
		{"unrelated error", errors.New("connection refused"), "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsUniqueViolation(tc.err, tc.constraint); got != tc.want {
				t.Fatalf("IsUniqueViolation(%v, %q) = %v, want %v", tc.err, tc.constraint, got, tc.want)
			}
		})
	}
}
