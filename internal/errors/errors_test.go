// Package errors provides unit tests for coded errors.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorFormatting verifies the code and cause appear in the string.
func TestErrorFormatting(t *testing.T) {
	plain := New(ErrStorage, "disk full")
	if !strings.Contains(plain.Error(), "STORAGE_ERROR") {
		t.Errorf("expected code in message, got %q", plain.Error())
	}

	cause := stderrors.New("quota exceeded")
	wrapped := Wrap(ErrStorage, "write failed", cause)
	if !strings.Contains(wrapped.Error(), "quota exceeded") {
		t.Errorf("expected cause in message, got %q", wrapped.Error())
	}
}

// TestUnwrap verifies errors.Is works through AppError.
func TestUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	wrapped := Wrap(ErrRemote, "request failed", cause)

	if !stderrors.Is(wrapped, cause) {
		t.Error("expected stdlib errors.Is to find the cause")
	}
	if wrapped.Unwrap() != cause {
		t.Error("Unwrap did not return the cause")
	}
}

// TestIsCode verifies the code matcher.
func TestIsCode(t *testing.T) {
	err := New(ErrConfig, "bad config")

	if !Is(err, ErrConfig) {
		t.Error("expected Is to match the code")
	}
	if Is(err, ErrStorage) {
		t.Error("expected Is to reject a different code")
	}
	if Is(stderrors.New("plain"), ErrConfig) {
		t.Error("expected Is to reject a non-AppError")
	}
}

// TestIsCodeThroughChain verifies the code matcher unwraps nested
// errors rather than asserting only on the outermost value.
func TestIsCodeThroughChain(t *testing.T) {
	inner := New(ErrStorage, "disk full")

	fmtWrapped := fmt.Errorf("saving record: %w", inner)
	if !Is(fmtWrapped, ErrStorage) {
		t.Error("expected Is to match a code behind fmt.Errorf %w")
	}

	doubleWrapped := Wrap(ErrSyncFailed, "replay failed", inner)
	if !Is(doubleWrapped, ErrSyncFailed) {
		t.Error("expected Is to match the outermost code")
	}
	if Is(fmtWrapped, ErrSyncFailed) {
		t.Error("expected Is to reject a code absent from the chain")
	}
}
