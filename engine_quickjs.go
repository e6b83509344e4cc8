//go:build !v8

package typesetd

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"modernc.org/quickjs"
)

// qjsFactory builds QuickJS-backed engine instances. Each New call gets a
// brand-new VM with the compiler module evaluated into it; nothing is
// pooled or reused across compilations.
type qjsFactory struct {
	cfg EngineConfig
}

func (f *qjsFactory) New(ctx context.Context, opts InitOptions) (Engine, error) {
	if opts.Module == nil {
		return nil, fmt.Errorf("no compiler module loader configured")
	}
	module, err := opts.Module.CompilerModule()
	if err != nil {
		return nil, fmt.Errorf("loading compiler module: %w", err)
	}

	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if f.cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(f.cfg.MemoryLimitMB) * 1024 * 1024)
	}

	eng := &qjsEngine{vm: vm}
	if err := eng.initialize(ctx, module, opts.Fonts); err != nil {
		vm.Close()
		return nil, err
	}
	return eng, nil
}

// qjsEngine is one ephemeral compiler instance inside a QuickJS VM.
//
// Module contract: evaluating the bundle defines the compiler global with
// init(options), addSource(path, text), mapShadow(path, base64) and
// compile({mainFilePath, format}) -> Promise of {result?: base64,
// diagnostics?: string|[object]}. Binary data crosses the Go/JS border
// base64-encoded in both directions.
type qjsEngine struct {
	vm     *quickjs.VM
	closed bool
}

func (e *qjsEngine) initialize(ctx context.Context, module string, fonts []FontAsset) error {
	if err := evalDiscard(e.vm, module); err != nil {
		return fmt.Errorf("evaluating compiler module: %w", err)
	}

	ok, err := evalString(e.vm, fmt.Sprintf(`String(typeof globalThis[%s] === "object" || typeof globalThis[%s] === "function")`,
		jsEscape(compilerGlobalName), jsEscape(compilerGlobalName)))
	if err != nil || ok != "true" {
		return fmt.Errorf("compiler module did not define %s", compilerGlobalName)
	}

	initJS := fmt.Sprintf(`globalThis[%s].init({fonts: %s, useDefaultFonts: %t})`,
		jsEscape(compilerGlobalName), fontArrayJS(fonts), len(fonts) == 0)
	if _, err := awaitEval(ctx, e.vm, initJS); err != nil {
		return fmt.Errorf("initializing compiler: %w", err)
	}
	return nil
}

func (e *qjsEngine) AddSource(path, text string) error {
	js := fmt.Sprintf(`globalThis[%s].addSource(%s, %s);`,
		jsEscape(compilerGlobalName), jsEscape(path), jsEscape(text))
	if err := evalDiscard(e.vm, js); err != nil {
		return fmt.Errorf("addSource %s: %w", path, err)
	}
	return nil
}

func (e *qjsEngine) MapShadow(path string, data []byte) error {
	js := fmt.Sprintf(`globalThis[%s].mapShadow(%s, %s);`,
		jsEscape(compilerGlobalName), jsEscape(path),
		jsEscape(base64.StdEncoding.EncodeToString(data)))
	if err := evalDiscard(e.vm, js); err != nil {
		return fmt.Errorf("mapShadow %s: %w", path, err)
	}
	return nil
}

func (e *qjsEngine) Compile(ctx context.Context, opts CompileOptions) (*RawResult, error) {
	expr := fmt.Sprintf(`Promise.resolve(globalThis[%s].compile({mainFilePath: %s, format: %s})).then(function(r) {
		return JSON.stringify({
			result: (r && r.result) ? r.result : null,
			diagnostics: (r && r.diagnostics !== undefined) ? r.diagnostics : null,
		});
	})`, jsEscape(compilerGlobalName), jsEscape(opts.MainFilePath), jsEscape(opts.Format))

	reply, err := awaitEval(ctx, e.vm, expr)
	if err != nil {
		return nil, err
	}
	return parseEngineReply([]byte(reply))
}

func (e *qjsEngine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.vm.Close()
}

// awaitEval evaluates a potentially-promise expression and pumps QuickJS
// pending jobs until it settles, returning the stringified resolution.
// QuickJS has no background event loop here: if no jobs remain and the
// promise is still pending, nothing can ever settle it.
func awaitEval(ctx context.Context, vm *quickjs.VM, expr string) (string, error) {
	setup := fmt.Sprintf(`
		delete globalThis.__await_result;
		delete globalThis.__await_state;
		Promise.resolve(%s).then(
			function(r) { globalThis.__await_result = r === undefined ? "" : String(r); globalThis.__await_state = "fulfilled"; },
			function(e) { globalThis.__await_result = String(e && e.message || e); globalThis.__await_state = "rejected"; }
		);`, expr)
	if err := evalDiscard(vm, setup); err != nil {
		return "", fmt.Errorf("evaluating compiler call: %w", err)
	}

	for {
		jobs := executePendingJobs(vm)

		state, err := evalString(vm, `String(globalThis.__await_state)`)
		if err != nil {
			return "", fmt.Errorf("checking promise state: %w", err)
		}
		if state != "undefined" {
			result, err := evalString(vm, `String(globalThis.__await_result)`)
			if err != nil {
				return "", fmt.Errorf("reading promise result: %w", err)
			}
			if state == "rejected" {
				return "", fmt.Errorf("compiler promise rejected: %s", result)
			}
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}
		if jobs == 0 {
			return "", fmt.Errorf("compiler promise never settled")
		}
	}
}

// fontArrayJS renders the font set as a JS array literal of {name, data}
// objects with base64 data.
func fontArrayJS(fonts []FontAsset) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, f := range fonts {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "{name: %s, data: %s}",
			jsEscape(f.Name), jsEscape(base64.StdEncoding.EncodeToString(f.Data)))
	}
	sb.WriteString("]")
	return sb.String()
}
