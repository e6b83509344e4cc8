package typesetd

import (
	"fmt"
	"os"
	"strings"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// compilerGlobalName is the global the bundled compiler module is assigned
// to inside the engine VM. The backends call into it by this name.
const compilerGlobalName = "__typeset_compiler__"

// DiskModuleLoader loads the compiler module from a file on disk, bundling
// it with esbuild into a single self-contained script on first use. ESM
// sources with imports are resolved and flattened; plain scripts pass
// through untouched.
type DiskModuleLoader struct {
	Path string

	once   sync.Once
	source string
	err    error
}

// CompilerModule returns the bundled compiler script. The result is cached
// for the life of the loader; every engine instance evaluates the same
// bundle.
func (l *DiskModuleLoader) CompilerModule() (string, error) {
	l.once.Do(func() {
		l.source, l.err = bundleCompilerModule(l.Path)
	})
	return l.source, l.err
}

// StaticModuleLoader serves an in-memory compiler script. Used by embedded
// deployments and tests.
type StaticModuleLoader string

func (l StaticModuleLoader) CompilerModule() (string, error) {
	return string(l), nil
}

// bundleCompilerModule reads the module entry point and, when it carries
// import statements, bundles it into a single IIFE assigned to the
// compiler global.
func bundleCompilerModule(entryPoint string) (string, error) {
	source, err := os.ReadFile(entryPoint)
	if err != nil {
		return "", fmt.Errorf("reading compiler module: %w", err)
	}

	src := string(source)
	if !needsBundling(src) {
		return src, nil
	}

	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints: []string{entryPoint},
		Bundle:      true,
		Format:      esbuild.FormatIIFE,
		GlobalName:  compilerGlobalName,
		Write:       false,
		Platform:    esbuild.PlatformBrowser,
		Target:      esbuild.ES2022,
	})

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("bundling compiler module: %s", strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling produced no output")
	}

	return string(result.OutputFiles[0].Contents), nil
}

// needsBundling checks for import/require statements that force a bundle
// pass. Self-contained scripts skip esbuild entirely.
func needsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(") ||
		strings.Contains(source, "export ") ||
		strings.Contains(source, "require(")
}
