package typesetd

import (
	"context"
	"sync"
)

// WorkerSession owns the mutable state of one worker lifetime: the font
// set, the virtual file store, and the compile scheduler. There are no
// package-level globals; the boundary adapter constructs one session per
// connection and routes every message through it.
type WorkerSession struct {
	factory EngineFactory
	module  ModuleLoader
	files   *FileStore

	mu    sync.Mutex
	fonts []FontAsset

	sched *Scheduler

	// emit delivers one outcome back to the boundary adapter. Called from
	// the scheduler goroutine, in completion order.
	emit func(CompileOutcome)
}

// NewWorkerSession wires a session around an engine factory and module
// loader. Outcomes are delivered through emit; a superseded pending
// request produces no outcome at all.
func NewWorkerSession(factory EngineFactory, module ModuleLoader, emit func(CompileOutcome)) *WorkerSession {
	ws := &WorkerSession{
		factory: factory,
		module:  module,
		files:   NewFileStore(),
		emit:    emit,
	}
	ws.sched = NewScheduler(ws.compile)
	return ws
}

// LoadFonts replaces the font set used by all subsequent engine
// constructions. A compilation already in flight keeps the fonts it was
// prepared with.
func (ws *WorkerSession) LoadFonts(fonts []FontAsset) {
	ws.mu.Lock()
	ws.fonts = fonts
	ws.mu.Unlock()
}

// Submit accepts a compile request: uploaded files go into the store
// first, then the request is handed to the scheduler, which either starts
// it or coalesces it into the pending slot.
func (ws *WorkerSession) Submit(req *CompileRequest) {
	for path, data := range req.Files {
		ws.files.Put(path, data)
	}
	ws.sched.Submit(req)
}

// Files exposes the session's virtual file store.
func (ws *WorkerSession) Files() *FileStore {
	return ws.files
}

// compile runs one request end to end against a fresh engine instance.
func (ws *WorkerSession) compile(req *CompileRequest) {
	ws.mu.Lock()
	fonts := ws.fonts
	ws.mu.Unlock()

	ctx := context.Background()
	eng, err := prepareEngine(ctx, ws.factory, ws.module, fonts, ws.files.Snapshot(), req.Source)
	if err != nil {
		// Initialization failure: one synthetic diagnostic, no retry.
		diags, summary := NormalizeError(err, MainFilePath)
		ws.emit(Failure(summary, diags))
		return
	}

	ws.emit(runCompile(ctx, eng))
}
