package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(KindValidation, "bad input")
	if KindOf(err) != KindValidation {
		t.Errorf("KindOf = %v, want validation", KindOf(err))
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("plain error should have no kind")
	}
	if KindOf(nil) != 0 {
		t.Error("nil should have no kind")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fs.ErrNotExist
	err := Wrap(cause, KindResource, "opening workspace")

	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("wrapped cause lost from errors.Is chain")
	}
	if !Is(err, KindResource) {
		t.Error("wrapped error should keep its kind")
	}

	// A kind survives further fmt wrapping.
	outer := fmt.Errorf("handler: %w", err)
	if KindOf(outer) != KindResource {
		t.Errorf("KindOf through fmt wrap = %v, want resource", KindOf(outer))
	}
}

func TestErrorMessage(t *testing.T) {
	if got := New(KindTimeout, "too slow").Error(); got != "too slow" {
		t.Errorf("Error() = %q, want %q", got, "too slow")
	}
	wrapped := Wrap(errors.New("cause"), KindProcess, "run failed")
	if got := wrapped.Error(); got != "run failed: cause" {
		t.Errorf("Error() = %q, want %q", got, "run failed: cause")
	}
}
