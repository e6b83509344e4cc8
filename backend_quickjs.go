//go:build !v8

package typesetd

// NewEngineFactory returns the default QuickJS-backed engine factory.
// Build with -tags v8 to select the V8 backend instead.
func NewEngineFactory(cfg EngineConfig) EngineFactory {
	return &qjsFactory{cfg: cfg}
}
