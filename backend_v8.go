//go:build v8

package typesetd

// NewEngineFactory returns the V8-backed engine factory (selected by the
// v8 build tag).
func NewEngineFactory(cfg EngineConfig) EngineFactory {
	return &v8Factory{cfg: cfg}
}
