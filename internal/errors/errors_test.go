package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"direct", StateConflict("boom"), ErrCodeStateConflict},
		{"wrapped cause", Wrap(stderrors.New("io"), ErrCodeTransient, "db down"), ErrCodeTransient},
		{"fmt-wrapped", fmt.Errorf("outer: %w", NotFound("amendment", "a-1")), ErrCodeNotFound},
		{"plain error", stderrors.New("plain"), ErrCodeInternal},
		{"nil-ish default", fmt.Errorf("no code"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := Validation("amended_qty", "must be non-negative")
	if !Is(err, ErrCodeValidation) {
		t.Error("expected Is to match VALIDATION")
	}
	if Is(err, ErrCodeStateConflict) {
		t.Error("Is must not match a different code")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeTransient, "query failed")

	if !stderrors.Is(err, cause) {
		t.Error("expected the cause to survive unwrapping")
	}
	msg := err.Error()
	if msg != "TRANSIENT: query failed: connection reset" {
		t.Errorf("unexpected message: %q", msg)
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("store", "store-9")
	if err.Error() != "NOT_FOUND: store not found: store-9" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
