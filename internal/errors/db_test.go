package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_Codes(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "wrapped cancel", err: fmt.Errorf("upsert: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name:      "unique violation with column",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "analysis_id"},
			wantCode:  ErrCodeConflict,
			wantField: "analysis_id",
		},
		{
			name: "unique violation from detail",
			err: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: `Key (analysis_id)=(analysis_abc) already exists.`,
			},
			wantCode:  ErrCodeConflict,
			wantField: "analysis_id",
		},
		{
			name: "check violation from constraint",
			err: &pgconn.PgError{
				Code:           pgerrcode.CheckViolation,
				TableName:      "analysis_jobs",
				ConstraintName: "analysis_jobs_status_check",
			},
			wantCode: ErrCodeValidation,
		},
		{
			name:      "not null violation",
			err:       &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "status"},
			wantCode:  ErrCodeValidation,
			wantField: "status",
		},
		{name: "admin shutdown", err: &pgconn.PgError{Code: pgerrcode.AdminShutdown}, wantCode: ErrCodeUnavailable},
		{name: "connection failure", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, wantCode: ErrCodeUnavailable},
		{name: "unknown pg error", err: &pgconn.PgError{Code: "99999"}, wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if got := GetCode(err); got != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", got, tt.wantCode)
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", got, tt.wantField)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("MapDBError() should wrap the original error")
			}
		})
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	stdErr := errors.New("standard error")
	if err := MapDBError(stdErr); err != stdErr {
		t.Errorf("MapDBError() should return original error for non-db errors, got %v", err)
	}
}

func TestInferFieldFromConstraint(t *testing.T) {
	tests := []struct {
		table, constraint string
		want              string
	}{
		{"analysis_jobs", "analysis_jobs_status_check", "status"},
		{"analysis_jobs", "analysis_jobs_attempts_check", "attempts"},
		{"analysis_jobs", "analysis_jobs_pkey", ""},
		{"analysis_results", "analysis_results_policy_id_idx", ""},
		{"analysis_jobs", "other_table_status_check", ""},
		{"", "analysis_jobs_status_check", ""},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			if got := inferFieldFromConstraint(tt.table, tt.constraint); got != tt.want {
				t.Errorf("inferFieldFromConstraint(%q, %q) = %q, want %q", tt.table, tt.constraint, got, tt.want)
			}
		})
	}
}
