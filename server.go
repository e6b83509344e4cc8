package typesetd

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Server exposes the compile worker over HTTP: each accepted websocket
// connection gets its own WorkerSession, so editor tabs never share
// state.
type Server struct {
	factory EngineFactory
	module  ModuleLoader
	fonts   []FontAsset
	logger  *zap.Logger
}

// NewServer builds a server from config. Fonts found in the configured
// directory become the initial set for every session; an empty or missing
// directory means sessions start with the engine's default fonts.
func NewServer(cfg Config, logger *zap.Logger) *Server {
	srv := &Server{
		factory: NewEngineFactory(EngineConfig{MemoryLimitMB: cfg.MemoryLimitMB}),
		module:  &DiskModuleLoader{Path: cfg.ModulePath},
		logger:  logger,
	}
	if cfg.FontDir != "" {
		srv.fonts = loadFontDir(cfg.FontDir, logger)
	}
	return srv
}

// Handler returns the HTTP handler with the worker endpoint mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/worker", s.handleWorker)
	return mux
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	s.logger.Info("session started", zap.String("remote", r.RemoteAddr))

	b := NewBoundary(conn, s.factory, s.module, s.fonts, s.logger)
	if err := b.Run(r.Context()); err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
			websocket.CloseStatus(err) == websocket.StatusGoingAway {
			s.logger.Info("session closed", zap.String("remote", r.RemoteAddr))
		} else {
			s.logger.Warn("session ended", zap.String("remote", r.RemoteAddr), zap.Error(err))
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// loadFontDir reads font files from dir as the initial font set.
// Unreadable entries are logged and skipped.
func loadFontDir(dir string, logger *zap.Logger) []FontAsset {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("reading font directory", zap.String("dir", dir), zap.Error(err))
		return nil
	}

	var fonts []FontAsset
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".ttf", ".otf", ".ttc":
		default:
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Warn("reading font", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		fonts = append(fonts, FontAsset{Name: entry.Name(), Data: data})
	}

	logger.Info("fonts loaded", zap.String("dir", dir), zap.Int("count", len(fonts)))
	return fonts
}
