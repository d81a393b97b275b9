package proxy

import (
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/hostval"
)

// Converter crosses values between the runtimes. It is implemented by the
// dispatch layer; declared here so engine-backed wrappers can forward
// reads and writes without depending on it.
type Converter interface {
	// ToHost converts the engine value at ref into a host value.
	ToHost(ref engine.Ref) (hostval.Value, error)

	// FromHost converts a host value into an engine value.
	FromHost(v hostval.Value) (engine.Ref, error)
}
