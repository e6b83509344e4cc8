//go:build v8

package typesetd

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	v8 "github.com/tommie/v8go"
)

// v8Factory builds V8-backed engine instances: a fresh isolate and context
// per compilation, disposed unconditionally when the compile finishes.
type v8Factory struct {
	cfg EngineConfig
}

func (f *v8Factory) New(ctx context.Context, opts InitOptions) (Engine, error) {
	if opts.Module == nil {
		return nil, fmt.Errorf("no compiler module loader configured")
	}
	module, err := opts.Module.CompilerModule()
	if err != nil {
		return nil, fmt.Errorf("loading compiler module: %w", err)
	}

	var iso *v8.Isolate
	if f.cfg.MemoryLimitMB > 0 {
		heapSize := uint64(f.cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	v8ctx := v8.NewContext(iso)

	eng := &v8Engine{iso: iso, ctx: v8ctx}
	if err := eng.initialize(ctx, module, opts.Fonts); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

// v8Engine is one ephemeral compiler instance inside a V8 isolate. The
// module contract matches the QuickJS backend: the bundle defines the
// compiler global with init/addSource/mapShadow/compile, binary data
// base64-encoded in both directions.
type v8Engine struct {
	iso    *v8.Isolate
	ctx    *v8.Context
	closed bool
}

func (e *v8Engine) initialize(ctx context.Context, module string, fonts []FontAsset) error {
	if _, err := e.ctx.RunScript(module, "compiler.js"); err != nil {
		return fmt.Errorf("evaluating compiler module: %w", err)
	}

	check, err := e.ctx.RunScript(fmt.Sprintf(
		`typeof globalThis[%s] === "object" || typeof globalThis[%s] === "function"`,
		strconv.Quote(compilerGlobalName), strconv.Quote(compilerGlobalName)), "check.js")
	if err != nil || !check.Boolean() {
		return fmt.Errorf("compiler module did not define %s", compilerGlobalName)
	}

	initJS := fmt.Sprintf(`globalThis[%s].init({fonts: %s, useDefaultFonts: %t})`,
		strconv.Quote(compilerGlobalName), v8FontArrayJS(fonts), len(fonts) == 0)
	val, err := e.ctx.RunScript(initJS, "init.js")
	if err != nil {
		return fmt.Errorf("initializing compiler: %w", err)
	}
	if _, err := e.await(ctx, val); err != nil {
		return fmt.Errorf("initializing compiler: %w", err)
	}
	return nil
}

func (e *v8Engine) AddSource(path, text string) error {
	js := fmt.Sprintf(`globalThis[%s].addSource(%s, %s);`,
		strconv.Quote(compilerGlobalName), strconv.Quote(path), strconv.Quote(text))
	if _, err := e.ctx.RunScript(js, "add_source.js"); err != nil {
		return fmt.Errorf("addSource %s: %w", path, err)
	}
	return nil
}

func (e *v8Engine) MapShadow(path string, data []byte) error {
	js := fmt.Sprintf(`globalThis[%s].mapShadow(%s, %s);`,
		strconv.Quote(compilerGlobalName), strconv.Quote(path),
		strconv.Quote(base64.StdEncoding.EncodeToString(data)))
	if _, err := e.ctx.RunScript(js, "map_shadow.js"); err != nil {
		return fmt.Errorf("mapShadow %s: %w", path, err)
	}
	return nil
}

func (e *v8Engine) Compile(ctx context.Context, opts CompileOptions) (*RawResult, error) {
	expr := fmt.Sprintf(`Promise.resolve(globalThis[%s].compile({mainFilePath: %s, format: %s})).then(function(r) {
		return JSON.stringify({
			result: (r && r.result) ? r.result : null,
			diagnostics: (r && r.diagnostics !== undefined) ? r.diagnostics : null,
		});
	})`, strconv.Quote(compilerGlobalName), strconv.Quote(opts.MainFilePath), strconv.Quote(opts.Format))

	val, err := e.ctx.RunScript(expr, "compile.js")
	if err != nil {
		return nil, fmt.Errorf("invoking compile: %w", err)
	}

	resolved, err := e.await(ctx, val)
	if err != nil {
		return nil, err
	}
	return parseEngineReply([]byte(resolved.String()))
}

func (e *v8Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.ctx.Close()
	e.iso.Dispose()
}

// await resolves a potentially-promise value by pumping V8's microtask
// queue. Uses JS-side Promise.resolve().then() to capture the result,
// avoiding the need for a direct AsPromise() API.
func (e *v8Engine) await(ctx context.Context, val *v8.Value) (*v8.Value, error) {
	if val == nil || !val.IsPromise() {
		return val, nil
	}

	if err := e.ctx.Global().Set("__await_input", val); err != nil {
		return nil, fmt.Errorf("setting await input: %w", err)
	}

	_, err := e.ctx.RunScript(`
		delete globalThis.__awaited_result;
		delete globalThis.__awaited_state;
		Promise.resolve(globalThis.__await_input).then(
			r => { globalThis.__awaited_result = r; globalThis.__awaited_state = 'fulfilled'; },
			e => { globalThis.__awaited_result = e; globalThis.__awaited_state = 'rejected'; }
		);
		delete globalThis.__await_input;
	`, "await.js")
	if err != nil {
		return nil, fmt.Errorf("setting up promise await: %w", err)
	}

	// Pump microtasks until the promise settles.
	for {
		e.ctx.PerformMicrotaskCheckpoint()

		stateVal, err := e.ctx.Global().Get("__awaited_state")
		if err != nil {
			return nil, fmt.Errorf("checking promise state: %w", err)
		}
		if !stateVal.IsUndefined() {
			break
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		runtime.Gosched()
	}

	stateVal, _ := e.ctx.Global().Get("__awaited_state")
	resultVal, _ := e.ctx.Global().Get("__awaited_result")

	_, _ = e.ctx.RunScript("delete globalThis.__awaited_result; delete globalThis.__awaited_state;", "cleanup.js")

	if stateVal.String() == "rejected" {
		return nil, fmt.Errorf("compiler promise rejected: %s", resultVal.String())
	}
	return resultVal, nil
}

// v8FontArrayJS renders the font set as a JS array literal of {name, data}
// objects with base64 data.
func v8FontArrayJS(fonts []FontAsset) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range fonts {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "{name: %s, data: %s}",
			strconv.Quote(f.Name), strconv.Quote(base64.StdEncoding.EncodeToString(f.Data)))
	}
	sb.WriteString("]")
	return sb.String()
}
