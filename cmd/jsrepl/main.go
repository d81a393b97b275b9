package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Ciarands/jsbridge/bridge"
	"github.com/Ciarands/jsbridge/engine"
	"github.com/Ciarands/jsbridge/hostval"
	"github.com/Ciarands/jsbridge/proxy"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to engine wasm build")
		expr        = flag.String("e", "", "Expression to evaluate and print")
		scriptFile  = flag.String("file", "", "Script file to run")
		strict      = flag.Bool("strict", false, "Evaluate in strict mode")
		memPages    = flag.Uint("mem", 0, "Memory limit in 64KB pages (0 = default)")
		interactive = flag.Bool("i", false, "Interactive REPL with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: jsrepl -wasm <engine.wasm> [-e expr] [-file script.js]")
		fmt.Fprintln(os.Stderr, "       jsrepl -wasm <engine.wasm> -i  (interactive REPL)")
		fmt.Fprintln(os.Stderr, "       echo 'expr' | jsrepl -wasm <engine.wasm>")
		os.Exit(1)
	}

	log := zap.NewNop()
	if *verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		engine.SetLogger(log)
	}

	if *interactive {
		if err := runInteractive(*wasmFile, uint32(*memPages), log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *expr, *scriptFile, *strict, uint32(*memPages), log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, expr, scriptFile string, strict bool, memPages uint32, log *zap.Logger) error {
	ctx := context.Background()

	c, err := openBridge(ctx, wasmFile, memPages, log)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	opts := engine.EvalOptions{Strict: strict}

	switch {
	case expr != "":
		opts.Filename = "@arg"
		return evalAndPrint(ctx, c, expr, opts)

	case scriptFile != "":
		data, err := os.ReadFile(scriptFile)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		opts.Filename = scriptFile
		return evalAndPrint(ctx, c, string(data), opts)

	case !term.IsTerminal(int(os.Stdin.Fd())):
		// Piped input: evaluate stdin as one script.
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		opts.Filename = "@stdin"
		return evalAndPrint(ctx, c, string(data), opts)

	default:
		return fmt.Errorf("nothing to evaluate; use -e, -file, -i, or pipe a script")
	}
}

// openBridge loads the engine wasm and assembles a bridge context on it.
func openBridge(ctx context.Context, wasmFile string, memPages uint32, log *zap.Logger) (*bridge.Context, error) {
	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read engine: %w", err)
	}

	var cfg *engine.Config
	if memPages > 0 {
		cfg = &engine.Config{MemoryLimitPages: memPages}
	}
	eng, err := engine.New(ctx, data, cfg)
	if err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}

	c, err := bridge.New(eng, &bridge.Config{Logger: log})
	if err != nil {
		eng.Close(ctx)
		return nil, err
	}
	return c, nil
}

func evalAndPrint(ctx context.Context, c *bridge.Context, source string, opts engine.EvalOptions) error {
	v, err := c.Eval(ctx, source, opts)
	if err != nil {
		return err
	}
	out, err := formatValue(v, 0)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// formatValue renders a host value for display. Live views are rendered
// one level deep so a result object prints without pulling in its whole
// reachable graph.
func formatValue(v hostval.Value, depth int) (string, error) {
	if v == nil {
		return "undefined", nil
	}

	switch val := v.(type) {
	case hostval.None:
		return "undefined", nil
	case hostval.Null:
		return "null", nil
	case hostval.Bool:
		return strconv.FormatBool(bool(val)), nil
	case hostval.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case hostval.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case *hostval.Big:
		return val.Int.String() + "n", nil
	case hostval.String:
		if depth > 0 {
			return strconv.Quote(string(val)), nil
		}
		return string(val), nil
	case hostval.Date:
		return val.Time.Format("2006-01-02T15:04:05.000Z07:00"), nil
	case hostval.Buffer:
		return fmt.Sprintf("[buffer %d bytes]", len(val)), nil
	case *hostval.Error:
		return val.Message, nil
	case *hostval.Func, *proxy.EngineFunc:
		return "[function]", nil
	case *hostval.Promise:
		return "[promise]", nil

	case *proxy.EngineArray:
		if depth > 0 {
			return "[array]", nil
		}
		n, err := val.Len()
		if err != nil {
			return "", err
		}
		items := make([]string, n)
		for i := 0; i < n; i++ {
			el, err := val.Get(i)
			if err != nil {
				return "", err
			}
			items[i], err = formatValue(el, depth+1)
			if err != nil {
				return "", err
			}
		}
		return "[ " + strings.Join(items, ", ") + " ]", nil

	case *proxy.EngineObject:
		if depth > 0 {
			return "[object]", nil
		}
		keys, err := val.Keys()
		if err != nil {
			return "", err
		}
		parts := make([]string, len(keys))
		for i, k := range keys {
			el, err := val.Get(k)
			if err != nil {
				return "", err
			}
			rendered, err := formatValue(el, depth+1)
			if err != nil {
				return "", err
			}
			parts[i] = k + ": " + rendered
		}
		return "{ " + strings.Join(parts, ", ") + " }", nil

	default:
		return fmt.Sprintf("[%s]", v.Kind()), nil
	}
}
