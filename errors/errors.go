package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in a boundary crossing the error occurred
type Phase string

const (
	PhaseClassify Phase = "classify" // value kind classification
	PhaseEncode   Phase = "encode"   // host to engine
	PhaseDecode   Phase = "decode"   // engine to host
	PhaseCall     Phase = "call"     // cross-runtime invocation
	PhaseAnchor   Phase = "anchor"   // lifetime registration
	PhaseLoad     Phase = "load"     // engine module loading
	PhaseEval     Phase = "eval"     // script evaluation
	PhaseConfig   Phase = "config"   // configuration validation
)

// Kind categorizes the error
type Kind string

const (
	KindClassification Kind = "classification" // value kind not recognized
	KindConversion     Kind = "conversion"     // runtime-level transcoding failure
	KindUnsupported    Kind = "unsupported"    // unsupported configuration or kind
	KindTooDeep        Kind = "too_deep"       // conversion recursion limit hit
	KindOutOfBounds    Kind = "out_of_bounds"  // memory or index range violation
	KindInvalidData    Kind = "invalid_data"
	KindInvalidRef     Kind = "invalid_ref" // zero or stale engine reference
	KindEngineError    Kind = "engine_error"
	KindReadOnly       Kind = "read_only" // mutation of an immutable wrapper
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindClosed         Kind = "closed" // context already torn down
	KindABIMismatch    Kind = "abi_mismatch"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	HostKind   string
	EngineKind string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.HostKind != "" || e.EngineKind != "" {
		b.WriteString(": ")
		if e.HostKind != "" && e.EngineKind != "" {
			b.WriteString("host kind ")
			b.WriteString(e.HostKind)
			b.WriteString(", engine kind ")
			b.WriteString(e.EngineKind)
		} else if e.HostKind != "" {
			b.WriteString("host kind ")
			b.WriteString(e.HostKind)
		} else {
			b.WriteString("engine kind ")
			b.WriteString(e.EngineKind)
		}
	}

	if e.Detail != "" {
		if e.HostKind != "" || e.EngineKind != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// HostKind sets the host value kind name
func (b *Builder) HostKind(k string) *Builder {
	b.err.HostKind = k
	return b
}

// EngineKind sets the engine tag or class name
func (b *Builder) EngineKind(k string) *Builder {
	b.err.EngineKind = k
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Classification creates a classification-miss error. The rendered string of
// the offending value is embedded so the call origin sees what failed.
func Classification(phase Phase, rendered string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClassification,
		Detail: fmt.Sprintf("cannot convert value of: %s", rendered),
	}
}

// Conversion creates a conversion failure error
func Conversion(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConversion,
		Detail: detail,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation or configuration error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// TooDeep creates a recursion-limit error
func TooDeep(phase Phase, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTooDeep,
		Detail: fmt.Sprintf("object graph exceeds depth limit %d", limit),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidRef creates an invalid engine reference error
func InvalidRef(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidRef,
		Detail: detail,
	}
}

// Engine wraps an engine-reported failure
func Engine(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEngineError,
		Detail: detail,
		Cause:  cause,
	}
}

// ReadOnly creates a mutation-of-immutable error
func ReadOnly(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReadOnly,
		Detail: fmt.Sprintf("%s is read-only", what),
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates an error for operations on a torn-down context
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Load creates an engine module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ABIMismatch reports a disagreement with the engine build's internal layout
func ABIMismatch(want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindABIMismatch,
		Detail: fmt.Sprintf("engine ABI version %q, bridge supports %q", got, want),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// AsError unwraps err to this package's Error type. Callers outside this
// package avoid a second errors import for the one-line As.
func AsError(err error, target **Error) bool {
	return stderrors.As(err, target)
}

// MissingExport represents a single engine export the bridge requires
type MissingExport struct {
	Name string
	Sig  string
}

// MissingExportsError is returned when the engine build lacks required exports
type MissingExportsError struct {
	Exports []MissingExport
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[load] missing_export: no exports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "engine build missing %d required export(s):\n", len(e.Exports))
	for _, exp := range e.Exports {
		b.WriteString("  - ")
		b.WriteString(exp.Name)
		if exp.Sig != "" {
			b.WriteString(": ")
			b.WriteString(exp.Sig)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
