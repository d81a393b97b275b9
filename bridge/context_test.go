package bridge_test

import (
	"context"
	"sync"
	"testing"

	"github.com/Ciarands/jsbridge/bridge"
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/enginetest"
	"github.com/Ciarands/jsbridge/hostval"
)

func newContext(t *testing.T) (*enginetest.Engine, *bridge.Context) {
	t.Helper()
	eng := enginetest.New()
	c, err := bridge.New(eng, nil)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return eng, c
}

func TestEvalLiteral(t *testing.T) {
	_, c := newContext(t)

	v, err := c.Eval(context.Background(), "42", engine.EvalOptions{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v != hostval.Float(42) {
		t.Fatalf("result = %#v, want Float(42)", v)
	}

	v, err = c.Eval(context.Background(), "'hello'", engine.EvalOptions{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v != hostval.String("hello") {
		t.Fatalf("result = %#v, want String(hello)", v)
	}
}

func TestEvalScript(t *testing.T) {
	eng, c := newContext(t)

	eng.AddScript("makeObject()", func() (engine.Ref, error) {
		obj, _ := eng.NewObject()
		n, _ := eng.NewNumber(7)
		_ = eng.Set(obj, "n", n)
		return obj, nil
	})

	v, err := c.Eval(context.Background(), "makeObject()", engine.EvalOptions{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	obj, ok := v.(interface {
		Get(string) (hostval.Value, error)
	})
	if !ok {
		t.Fatalf("result = %T, want object view", v)
	}
	got, err := obj.Get("n")
	if err != nil {
		t.Fatal(err)
	}
	if got != hostval.Float(7) {
		t.Fatalf("n = %#v, want Float(7)", got)
	}
}

func TestEvalErrorCarriesEngineMessage(t *testing.T) {
	_, c := newContext(t)

	_, err := c.Eval(context.Background(), "not a script", engine.EvalOptions{})
	if err == nil {
		t.Fatal("expected eval error")
	}
	if want := "SyntaxError"; !containsStr(err.Error(), want) {
		t.Fatalf("error %q does not carry the engine message", err.Error())
	}
}

func containsStr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestDoFromManyGoroutines(t *testing.T) {
	_, c := newContext(t)

	m := hostval.NewMap()
	ref, err := c.ToEngine(context.Background(), m)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := c.Do(context.Background(), func() error {
				v, cerr := c.Dispatcher().ToHost(ref)
				if cerr != nil {
					return cerr
				}
				v.(*hostval.Map).Set("k", hostval.Int(int64(i)))
				return nil
			})
			if err != nil {
				t.Errorf("do: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if !m.Has("k") {
		t.Fatal("loop jobs did not reach the shared map")
	}
}

func TestCallEngineFunc(t *testing.T) {
	eng, c := newContext(t)

	fn := eng.NewNativeFunc(func(_ engine.Ref, args []engine.Ref) (engine.Ref, error) {
		n, err := eng.ToNumber(args[0])
		if err != nil {
			return 0, err
		}
		return eng.NewNumber(n + 1)
	})
	v, err := c.ToHost(context.Background(), fn)
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.Call(context.Background(), v, hostval.Int(4))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out != hostval.Float(5) {
		t.Fatalf("result = %#v, want Float(5)", out)
	}

	if _, err := c.Call(context.Background(), hostval.Int(1)); err == nil {
		t.Fatal("expected error calling a non-callable")
	}
}

func TestIsCompilableUnit(t *testing.T) {
	_, c := newContext(t)

	ok, err := c.IsCompilableUnit(context.Background(), "function f() {")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("open brace should be incomplete")
	}
	ok, err = c.IsCompilableUnit(context.Background(), "function f() {}")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("balanced source should be complete")
	}
}

func TestCollectAndStats(t *testing.T) {
	_, c := newContext(t)

	m := hostval.NewMap()
	if _, err := c.ToEngine(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	if s := c.Stats(); s.Handles != 1 || s.Associations != 1 {
		t.Fatalf("stats = %+v", s)
	}

	m.Release()
	if err := c.Collect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := c.Stats(); s.Handles != 0 || s.Associations != 0 {
		t.Fatalf("stats after collect = %+v", s)
	}
}

func TestClosedContext(t *testing.T) {
	_, c := newContext(t)
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Do(context.Background(), func() error { return nil }); err == nil {
		t.Fatal("expected error on closed context")
	}
	if _, err := c.Eval(context.Background(), "1", engine.EvalOptions{}); err == nil {
		t.Fatal("expected error on closed context")
	}
}

func TestABIMismatchRejected(t *testing.T) {
	eng := enginetest.New()
	eng.SetABIVersion("jsbridge-abi-0")
	if _, err := bridge.New(eng, nil); err == nil {
		t.Fatal("expected ABI mismatch to be rejected")
	}
}
