package cmd

import (
	"errors"
	"testing"
)

func TestExitCodeError(t *testing.T) {
	t.Run("NewExitCodeError creates error with code", func(t *testing.T) {
		err := NewExitCodeError(42)
		if err.Code != 42 {
			t.Errorf("Code = %d, want 42", err.Code)
		}
	})

	t.Run("Error returns formatted message", func(t *testing.T) {
		err := NewExitCodeError(42)
		want := "exit code 42"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("implements error interface", func(t *testing.T) {
		var e error = NewExitCodeError(1)
		if e.Error() != "exit code 1" {
			t.Errorf("Error() = %q, want %q", e.Error(), "exit code 1")
		}
	})

	t.Run("errors.As matches ExitCodeError", func(t *testing.T) {
		err := NewExitCodeError(ExitPersist)
		var exitErr *ExitCodeError
		if !errors.As(err, &exitErr) {
			t.Error("errors.As failed to match ExitCodeError")
		}
		if exitErr.Code != ExitPersist {
			t.Errorf("Code = %d, want %d", exitErr.Code, ExitPersist)
		}
	})

	t.Run("errors.As matches wrapped ExitCodeError", func(t *testing.T) {
		inner := NewExitCodeError(ExitBlock)
		wrapped := errors.Join(errors.New("wrapper"), inner)
		var exitErr *ExitCodeError
		if !errors.As(wrapped, &exitErr) {
			t.Error("errors.As failed to match wrapped ExitCodeError")
		}
		if exitErr.Code != ExitBlock {
			t.Errorf("Code = %d, want %d", exitErr.Code, ExitBlock)
		}
	})
}
