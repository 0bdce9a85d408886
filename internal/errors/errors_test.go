package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{name: "message only", err: NotFound("analysis not found"), want: "analysis not found"},
		{
			name: "with cause",
			err:  Wrap(errors.New("connection refused"), ErrCodeUnavailable, "database unavailable"),
			want: "database unavailable: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrapf(cause, ErrCodeInternal, "upsert %s", "analysis_x")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Message != "upsert analysis_x" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "ignored"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestCodePredicates(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", &AppError{Code: ErrCodeTimeout, Message: "slow"})

	if !IsTimeout(wrapped) {
		t.Error("IsTimeout should see through wrapping")
	}
	if IsNotFound(wrapped) || IsConflict(wrapped) || IsValidation(wrapped) {
		t.Error("unexpected predicate match")
	}
	if !IsValidation(Validation("bad")) {
		t.Error("IsValidation(Validation()) = false")
	}
	if !IsUnavailable(Wrap(errors.New("x"), ErrCodeUnavailable, "down")) {
		t.Error("IsUnavailable = false")
	}
	if !IsCanceled(&AppError{Code: ErrCodeCanceled}) || !IsInternal(&AppError{Code: ErrCodeInternal}) {
		t.Error("IsCanceled/IsInternal mismatch")
	}
	if GetCode(errors.New("plain")) != "" || GetField(errors.New("plain")) != "" {
		t.Error("plain errors carry no code or field")
	}
}
