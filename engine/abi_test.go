package engine

import (
	"testing"
)

func TestParseWitWorld(t *testing.T) {
	funcs, err := parseWitFunctions(witWorld)
	if err != nil {
		t.Fatalf("parse declared world: %v", err)
	}

	// Every exported function the bridge calls must be declared.
	required := []string{
		"value-tag", "builtin-class", "unbox", "to-bool", "to-number",
		"to-string", "string-ptr", "string-len", "date-epoch-ms",
		"get-prop", "set-prop", "has-prop", "delete-prop", "own-keys",
		"get-index", "set-index", "array-length", "call", "await-promise",
		"new-undefined", "new-null", "new-bool", "new-number", "new-string",
		"new-object", "new-array", "new-date", "new-error", "new-array-buffer",
		"bigint-from-hex", "bigint-from-u64",
		"new-host-proxy", "proxy-family", "proxy-handle",
		"new-host-func", "host-func-handle",
		"pin", "unpin", "run-gc",
		"pending-exception", "take-exception", "clear-exception", "throw-error",
		"eval", "is-compilable-unit",
		"abi-version-ptr", "abi-version-len", "mem-alloc", "mem-free",
	}
	for _, name := range required {
		if _, ok := funcs[name]; !ok {
			t.Errorf("declared world missing %q", name)
		}
	}
	if len(funcs) != len(required) {
		t.Errorf("declared world has %d functions, want %d", len(funcs), len(required))
	}
}

func TestParseWitFunctionArity(t *testing.T) {
	funcs, err := parseWitFunctions(witWorld)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name    string
		params  int
		results int
	}{
		{"new-undefined", 0, 1},
		{"value-tag", 1, 1},
		{"set-prop", 4, 1},
		{"eval", 6, 1},
		{"unpin", 1, 0},
		{"run-gc", 0, 0},
		{"mem-free", 1, 0},
	}
	for _, tt := range tests {
		sig, ok := funcs[tt.name]
		if !ok {
			t.Errorf("%s: not declared", tt.name)
			continue
		}
		if len(sig.params) != tt.params {
			t.Errorf("%s: %d params, want %d", tt.name, len(sig.params), tt.params)
		}
		if len(sig.results) != tt.results {
			t.Errorf("%s: %d results, want %d", tt.name, len(sig.results), tt.results)
		}
	}
}

func TestParseWitFunctionSignatures(t *testing.T) {
	funcs, err := parseWitFunctions(`
		to-number: func(ref: u32) -> f64;
		bigint-from-u64: func(v: u64) -> u32;
	`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := witSigString(funcs["to-number"]); got != "func(u32) -> f64" {
		t.Errorf("to-number signature = %q", got)
	}
	if got := witSigString(funcs["bigint-from-u64"]); got != "func(u64) -> u32" {
		t.Errorf("bigint-from-u64 signature = %q", got)
	}
}

func TestParseWitFunctionsEmpty(t *testing.T) {
	if _, err := parseWitFunctions("// nothing declared"); err == nil {
		t.Fatal("expected error for WIT text with no functions")
	}
}

func TestParseWitFunctionsBadType(t *testing.T) {
	if _, err := parseWitFunctions(`broken: func(x: not-a-type) -> u32;`); err == nil {
		t.Fatal("expected error for unknown parameter type")
	}
}
