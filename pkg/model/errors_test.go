package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessageIncludesContext(t *testing.T) {
	err := NewError(KindVoltageMismatch, "rated voltages differ").
		WithComponent(ComponentLine, 42).
		WithOp("construction")

	msg := err.Error()
	for _, want := range []string{"voltage-mismatch", "rated voltages differ", "line", "id=42", "op=construction"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}
}

func TestErrorIsMatchesOnKind(t *testing.T) {
	err := NewError(KindConvergence, "solve stalled").WithDetail("iterations", 20)

	if !errors.Is(err, NewError(KindConvergence, "")) {
		t.Error("errors.Is should match on kind, ignoring message")
	}
	if errors.Is(err, NewError(KindValidation, "")) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("matrix is singular")
	err := NewError(KindUnderDetermined, "estimation failed").WithErr(cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable through errors.Is")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"classified", NewError(KindDuplicateID, "dup"), KindDuplicateID},
		{"wrapped", fmt.Errorf("context: %w", NewError(KindIDNotFound, "missing")), KindIDNotFound},
		{"foreign", errors.New("plain"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConstructionPredicate(t *testing.T) {
	construction := []ErrorKind{KindDuplicateID, KindIDNotFound, KindVoltageMismatch, KindValidation}
	for _, kind := range construction {
		if !IsConstruction(NewError(kind, "x")) {
			t.Errorf("IsConstruction(%s) = false, want true", kind)
		}
	}
	for _, kind := range []ErrorKind{KindConvergence, KindUnderDetermined, KindNotSupported} {
		if IsConstruction(NewError(kind, "x")) {
			t.Errorf("IsConstruction(%s) = true, want false", kind)
		}
	}
}
