package engine

import (
	"regexp"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	"github.com/Ciarands/jsbridge/errors"
)

// ABIVersionSupported is the engine internal-ABI generation this bridge was
// built against. The bigint cell layout is private to the engine build, so
// the version is re-checked on every load rather than assumed stable.
const ABIVersionSupported = "jsbridge-abi-1"

// witWorld declares the engine surface the bridge requires. Core modules
// carry no type metadata, so the expected signatures are declared here and
// validated against the instantiated module's exports.
const witWorld = `
// engine value inspection
value-tag: func(ref: u32) -> u32;
builtin-class: func(ref: u32) -> u32;
unbox: func(ref: u32) -> u32;
to-bool: func(ref: u32) -> u32;
to-number: func(ref: u32) -> f64;
to-string: func(ref: u32) -> u32;
string-ptr: func(ref: u32) -> u32;
string-len: func(ref: u32) -> u32;
date-epoch-ms: func(ref: u32) -> f64;

// object protocol
get-prop: func(obj: u32, key-ptr: u32, key-len: u32) -> u32;
set-prop: func(obj: u32, key-ptr: u32, key-len: u32, val: u32) -> u32;
has-prop: func(obj: u32, key-ptr: u32, key-len: u32) -> u32;
delete-prop: func(obj: u32, key-ptr: u32, key-len: u32) -> u32;
own-keys: func(obj: u32) -> u32;
get-index: func(obj: u32, i: u32) -> u32;
set-index: func(obj: u32, i: u32, val: u32) -> u32;
array-length: func(obj: u32) -> u32;
call: func(fn: u32, this: u32, argv: u32, argc: u32) -> u32;
await-promise: func(p: u32) -> u32;

// construction
new-undefined: func() -> u32;
new-null: func() -> u32;
new-bool: func(v: u32) -> u32;
new-number: func(v: f64) -> u32;
new-string: func(ptr: u32, len: u32) -> u32;
new-object: func() -> u32;
new-array: func(len: u32) -> u32;
new-date: func(epoch-ms: f64) -> u32;
new-error: func(ptr: u32, len: u32) -> u32;
new-array-buffer: func(ptr: u32, len: u32) -> u32;

// bigint
bigint-from-hex: func(ptr: u32, len: u32) -> u32;
bigint-from-u64: func(v: u64) -> u32;

// proxies and host callables
new-host-proxy: func(family: u32, handle: u32) -> u32;
proxy-family: func(ref: u32) -> u32;
proxy-handle: func(ref: u32) -> u32;
new-host-func: func(handle: u32, name-ptr: u32, name-len: u32) -> u32;
host-func-handle: func(ref: u32) -> u32;

// lifetime
pin: func(ref: u32) -> u32;
unpin: func(ref: u32);
run-gc: func();

// error state
pending-exception: func() -> u32;
take-exception: func() -> u32;
clear-exception: func();
throw-error: func(ptr: u32, len: u32);

// evaluation
eval: func(src-ptr: u32, src-len: u32, file-ptr: u32, file-len: u32, line: u32, flags: u32) -> u32;
is-compilable-unit: func(ptr: u32, len: u32) -> u32;

// build identification and guest allocator
abi-version-ptr: func() -> u32;
abi-version-len: func() -> u32;
mem-alloc: func(size: u32) -> u32;
mem-free: func(ptr: u32);
`

type funcSignature struct {
	params  []wit.Type
	results []wit.Type
}

// parseWitFunctions extracts function signatures from WIT text.
// Pattern: name: func(params) -> result;
func parseWitFunctions(witText string) (map[string]*funcSignature, error) {
	funcs := make(map[string]*funcSignature)

	funcPattern := regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

	matches := funcPattern.FindAllStringSubmatch(witText, -1)
	for _, match := range matches {
		name := match[1]
		paramsStr := strings.TrimSpace(match[2])
		resultStr := ""
		if len(match) > 3 {
			resultStr = strings.TrimSpace(match[3])
		}

		sig := &funcSignature{}

		if paramsStr != "" {
			for _, p := range strings.Split(paramsStr, ",") {
				typStr := strings.TrimSpace(p)
				if idx := strings.LastIndex(typStr, ":"); idx != -1 {
					typStr = strings.TrimSpace(typStr[idx+1:])
				}
				t, err := wit.ParseType(typStr)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "parse param type "+typStr)
				}
				sig.params = append(sig.params, t)
			}
		}

		if resultStr != "" {
			t, err := wit.ParseType(resultStr)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "parse result type "+resultStr)
			}
			sig.results = []wit.Type{t}
		}

		funcs[name] = sig
	}

	if len(funcs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseLoad, "no functions found in WIT text")
	}

	return funcs, nil
}

func witSigString(sig *funcSignature) string {
	var b strings.Builder
	b.WriteString("func(")
	for i, p := range sig.params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(witTypeName(p))
	}
	b.WriteString(")")
	if len(sig.results) > 0 {
		b.WriteString(" -> ")
		b.WriteString(witTypeName(sig.results[0]))
	}
	return b.String()
}

func witTypeName(t wit.Type) string {
	switch t.(type) {
	case wit.U32:
		return "u32"
	case wit.U64:
		return "u64"
	case wit.F64:
		return "f64"
	case wit.S32:
		return "s32"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	default:
		return "u32"
	}
}

// validateExports checks the engine build's exported functions against the
// declared WIT surface: every declared function must exist with matching
// core arity.
func validateExports(defs map[string]api.FunctionDefinition) error {
	sigs, err := parseWitFunctions(witWorld)
	if err != nil {
		return err
	}

	var missing []errors.MissingExport
	for name, sig := range sigs {
		def, ok := defs[name]
		if !ok {
			missing = append(missing, errors.MissingExport{Name: name, Sig: witSigString(sig)})
			continue
		}
		if len(def.ParamTypes()) != len(sig.params) || len(def.ResultTypes()) != len(sig.results) {
			missing = append(missing, errors.MissingExport{Name: name, Sig: witSigString(sig) + " (arity mismatch)"})
		}
	}

	if len(missing) > 0 {
		return &errors.MissingExportsError{Exports: missing}
	}
	return nil
}
