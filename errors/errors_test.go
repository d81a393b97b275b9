package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:      PhaseDecode,
				Kind:       KindConversion,
				Path:       []string{"a", "0", "b"},
				HostKind:   "big",
				EngineKind: "bigint",
				Detail:     "digit storage out of range",
			},
			contains: []string{"[decode]", "conversion", "a.0.b", "big", "bigint", "digit storage"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseClassify,
				Kind:  KindClassification,
			},
			contains: []string{"[classify]", "classification"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEncode,
				Kind:   KindEngineError,
				Detail: "parse hex",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[encode]", "engine_error", "parse hex", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindConversion,
		Cause: cause,
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	a := &Error{Phase: PhaseDecode, Kind: KindClassification}
	b := &Error{Phase: PhaseDecode, Kind: KindClassification, Detail: "extra"}
	c := &Error{Phase: PhaseEncode, Kind: KindClassification}

	if !errors.Is(a, b) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(a, c) {
		t.Error("different phase should not match")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseEncode, KindTooDeep).
		Path("root", "nested").
		HostKind("map").
		Detail("limit %d", 256).
		Build()

	if err.Phase != PhaseEncode || err.Kind != KindTooDeep {
		t.Fatalf("wrong phase/kind: %v %v", err.Phase, err.Kind)
	}
	if err.Detail != "limit 256" {
		t.Fatalf("detail not formatted: %q", err.Detail)
	}
	if len(err.Path) != 2 {
		t.Fatalf("expected 2 path segments, got %d", len(err.Path))
	}
}

func TestClassification(t *testing.T) {
	err := Classification(PhaseDecode, "Symbol(test)")
	if !strings.Contains(err.Error(), "Symbol(test)") {
		t.Errorf("rendered value missing from message: %q", err.Error())
	}
	if err.Kind != KindClassification {
		t.Errorf("expected classification kind, got %v", err.Kind)
	}
}

func TestMissingExportsError(t *testing.T) {
	err := &MissingExportsError{
		Exports: []MissingExport{
			{Name: "value-tag", Sig: "func(ref: u32) -> u32"},
			{Name: "bigint-from-hex"},
		},
	}
	msg := err.Error()
	if !strings.Contains(msg, "value-tag") || !strings.Contains(msg, "bigint-from-hex") {
		t.Errorf("missing export names in %q", msg)
	}
	if !errors.Is(err, &MissingExportsError{}) {
		t.Error("Is should match any MissingExportsError")
	}
}

func TestABIMismatch(t *testing.T) {
	err := ABIMismatch("bridge-abi-1", "bridge-abi-2")
	if err.Kind != KindABIMismatch {
		t.Fatalf("wrong kind: %v", err.Kind)
	}
	if !strings.Contains(err.Error(), "bridge-abi-2") {
		t.Errorf("got version missing: %q", err.Error())
	}
}
