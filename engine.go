package typesetd

import (
	"context"
	"fmt"
	"strings"
)

// Engine is one ephemeral instance of the external typesetting compiler.
// An instance is exclusively owned by a single compilation: it is built
// fresh by an EngineFactory, fed the entry document and shadow files, run
// once, and closed unconditionally. Reusing an instance across
// compilations previously leaked document state inside the wrapped
// compiler, so instance-per-compile is a design decision, not an
// optimization opportunity.
type Engine interface {
	// AddSource registers text as the document visible at path.
	AddSource(path, text string) error
	// MapShadow makes data visible to the compiler at the absolute path.
	MapShadow(path string, data []byte) error
	// Compile runs the compiler for the entry document and returns the
	// raw result. Recoverable compile errors come back as Diagnostics on
	// the result; an error return means the engine itself faulted.
	Compile(ctx context.Context, opts CompileOptions) (*RawResult, error)
	// Close destroys the instance. Safe to call exactly once.
	Close()
}

// CompileOptions selects the entry document and output kind.
type CompileOptions struct {
	MainFilePath string
	Format       string
}

// EngineConfig holds backend tuning shared by both engine implementations.
type EngineConfig struct {
	// MemoryLimitMB caps the VM heap per engine instance. Zero means the
	// backend's default.
	MemoryLimitMB int
}

// RawResult is what the engine hands back from one compile call: either
// an artifact, or a diagnostics payload, exceptionally both (warnings
// alongside a successful artifact).
type RawResult struct {
	Artifact    []byte
	Diagnostics RawPayload
}

// InitOptions configures construction of a fresh engine instance.
type InitOptions struct {
	// Module locates the compiler module source.
	Module ModuleLoader
	// Fonts are loaded verbatim into the instance. Empty means the
	// engine's own default font set.
	Fonts []FontAsset
}

// EngineFactory constructs engine instances. Implementations live behind
// build tags: QuickJS by default, V8 with -tags v8.
type EngineFactory interface {
	New(ctx context.Context, opts InitOptions) (Engine, error)
}

// ModuleLoader retrieves the compiler module's script source.
type ModuleLoader interface {
	CompilerModule() (string, error)
}

// prepareEngine builds a ready-to-compile engine instance for one request:
// fresh instance, fonts attached, every binary virtual file mapped into
// the shadow filesystem under an absolute path, source registered as the
// entry document. On error the partially-built instance is closed.
func prepareEngine(ctx context.Context, factory EngineFactory, module ModuleLoader, fonts []FontAsset, files map[string][]byte, source string) (Engine, error) {
	eng, err := factory.New(ctx, InitOptions{Module: module, Fonts: fonts})
	if err != nil {
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	for path, data := range files {
		if data == nil {
			// Placeholder entry, nothing to map.
			continue
		}
		if err := eng.MapShadow(shadowPath(path), data); err != nil {
			eng.Close()
			return nil, fmt.Errorf("mapping shadow file %s: %w", path, err)
		}
	}

	if err := eng.AddSource(MainFilePath, source); err != nil {
		eng.Close()
		return nil, fmt.Errorf("registering entry document: %w", err)
	}

	return eng, nil
}

// runCompile executes the engine once and normalizes whatever comes back.
// The engine is closed before returning, on every path including panics
// out of the wrapped compiler.
func runCompile(ctx context.Context, eng Engine) (outcome CompileOutcome) {
	defer eng.Close()
	defer func() {
		if r := recover(); r != nil {
			diags, summary := NormalizeError(fmt.Errorf("engine panic: %v", r), MainFilePath)
			outcome = Failure(summary, diags)
		}
	}()

	res, err := eng.Compile(ctx, CompileOptions{MainFilePath: MainFilePath, Format: FormatPDF})
	if err != nil {
		diags, summary := NormalizeError(err, MainFilePath)
		return Failure(summary, diags)
	}

	if len(res.Artifact) > 0 {
		return Success(res.Artifact)
	}

	diags, summary := Normalize(res.Diagnostics, MainFilePath)
	return Failure(summary, diags)
}

// shadowPath derives the engine-side absolute path for a stored logical path.
func shadowPath(logical string) string {
	return "/" + strings.TrimPrefix(logical, "/")
}
