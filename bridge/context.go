package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Ciarands/jsbridge/anchor"
	"github.com/Ciarands/jsbridge/bigint"
	"github.com/Ciarands/jsbridge/dispatch"
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/errors"
	"github.com/Ciarands/jsbridge/hostval"
	"github.com/Ciarands/jsbridge/proxy"
)

// Config holds configuration for a bridge context.
type Config struct {
	// Logger receives structured bridge logs. Nil disables logging.
	Logger *zap.Logger

	// MaxDepth overrides the conversion recursion limit. 0 keeps the
	// default.
	MaxDepth int

	// BigIntLayout overrides the engine's bigint cell layout. Zero value
	// keeps the layout matching the supported ABI version.
	BigIntLayout bigint.Layout
}

// Context owns one engine instance and everything bridged to it. The
// engine is not reentrant, so all engine work runs on a single loop
// goroutine; Do and the convenience methods marshal calls onto it from
// any goroutine.
type Context struct {
	eng   engine.Engine
	reg   *proxy.Registry
	coord *anchor.Coordinator
	disp  *dispatch.Dispatcher
	log   *zap.Logger

	jobs chan func()
	done chan struct{}
	once sync.Once
}

// New wires a dispatcher, proxy registry, and lifetime coordinator around
// eng, installs the trap hooks, and starts the loop goroutine.
func New(eng engine.Engine, cfg *Config) (*Context, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if v := eng.ABIVersion(); v != engine.ABIVersionSupported {
		return nil, errors.ABIMismatch(engine.ABIVersionSupported, v)
	}

	layout := cfg.BigIntLayout
	if layout == (bigint.Layout{}) {
		layout = bigint.DefaultLayout
	}

	reg := proxy.NewRegistry(log)
	coord := anchor.New(eng, log)
	codec := bigint.NewCodec(layout, log)
	disp := dispatch.New(eng, reg, coord, codec, log)
	if cfg.MaxDepth > 0 {
		disp.SetMaxDepth(cfg.MaxDepth)
	}
	eng.SetHooks(disp)

	c := &Context{
		eng:   eng,
		reg:   reg,
		coord: coord,
		disp:  disp,
		log:   log,
		jobs:  make(chan func()),
		done:  make(chan struct{}),
	}
	go c.run()
	return c, nil
}

func (c *Context) run() {
	for {
		select {
		case <-c.done:
			return
		case fn := <-c.jobs:
			fn()
		}
	}
}

// Do runs fn on the loop goroutine and waits for it. Cancelling ctx stops
// the wait, not the job: a job already started runs to completion.
func (c *Context) Do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case c.jobs <- func() { res <- fn() }:
	case <-c.done:
		return errors.Closed(errors.PhaseCall, "bridge context")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-c.done:
		return errors.Closed(errors.PhaseCall, "bridge context")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Eval evaluates source and returns the completion value converted to a
// host value. An engine exception becomes an error carrying the rendered
// engine error value.
func (c *Context) Eval(ctx context.Context, source string, opts engine.EvalOptions) (hostval.Value, error) {
	var out hostval.Value
	err := c.Do(ctx, func() error {
		ref, err := c.eng.Eval(source, opts)
		if err != nil {
			return c.pendingToError(err)
		}
		v, err := c.disp.ToHost(ref)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// pendingToError folds the engine's pending exception into err.
func (c *Context) pendingToError(err error) error {
	if !c.eng.Pending() {
		return err
	}
	ref, ok := c.eng.TakeError()
	if !ok {
		return err
	}
	rendered, rerr := c.eng.ToString(ref)
	if rerr != nil {
		rendered = "<unrenderable engine error>"
	}
	return errors.New(errors.PhaseEval, errors.KindEngineError).
		Cause(err).
		Detail("%s", rendered).
		Build()
}

// IsCompilableUnit reports whether source is a complete script, for
// line-by-line input accumulation.
func (c *Context) IsCompilableUnit(ctx context.Context, source string) (bool, error) {
	var ok bool
	err := c.Do(ctx, func() error {
		var cerr error
		ok, cerr = c.eng.IsCompilableUnit(source)
		return cerr
	})
	return ok, err
}

// ToEngine converts a host value on the loop goroutine.
func (c *Context) ToEngine(ctx context.Context, v hostval.Value) (engine.Ref, error) {
	var ref engine.Ref
	err := c.Do(ctx, func() error {
		var cerr error
		ref, cerr = c.disp.FromHost(v)
		return cerr
	})
	return ref, err
}

// ToHost converts an engine value on the loop goroutine.
func (c *Context) ToHost(ctx context.Context, ref engine.Ref) (hostval.Value, error) {
	var v hostval.Value
	err := c.Do(ctx, func() error {
		var cerr error
		v, cerr = c.disp.ToHost(ref)
		return cerr
	})
	return v, err
}

// Call invokes a host-callable value on the loop goroutine. It accepts
// the live function views produced by Eval and ToHost.
func (c *Context) Call(ctx context.Context, fn hostval.Value, args ...hostval.Value) (hostval.Value, error) {
	var out hostval.Value
	err := c.Do(ctx, func() error {
		switch f := fn.(type) {
		case *proxy.EngineFunc:
			v, cerr := f.Call(args...)
			if cerr != nil {
				return c.pendingToError(cerr)
			}
			out = v
			return nil
		case *hostval.Func:
			v, cerr := f.Invoke(args)
			if cerr != nil {
				return cerr
			}
			out = v
			return nil
		default:
			return errors.InvalidInput(errors.PhaseCall,
				"value of kind "+fn.Kind().String()+" is not callable")
		}
	})
	return out, err
}

// Collect runs an engine collection cycle, which also sweeps dead
// cross-boundary associations.
func (c *Context) Collect(ctx context.Context) error {
	return c.Do(ctx, func() error { return c.coord.Collect() })
}

// Stats reports live bridge bookkeeping counts.
type Stats struct {
	Pins         int
	Associations int
	Handles      int
}

func (c *Context) Stats() Stats {
	pins, assoc := c.coord.Stats()
	return Stats{Pins: pins, Associations: assoc, Handles: c.reg.Len()}
}

// Engine exposes the underlying engine for callers that manage their own
// loop confinement.
func (c *Context) Engine() engine.Engine { return c.eng }

// Dispatcher exposes the value converter.
func (c *Context) Dispatcher() *dispatch.Dispatcher { return c.disp }

// Close stops the loop and tears down the registry, coordinator, and
// engine. Outstanding Do calls fail with a closed error.
func (c *Context) Close(ctx context.Context) error {
	c.once.Do(func() { close(c.done) })
	c.coord.Close()
	c.reg.Close()
	return c.eng.Close(ctx)
}
