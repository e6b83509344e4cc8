package main

import (
	"net/http"
	"os"

	"go.uber.org/zap"

	typesetd "github.com/quillworks/typesetd"
)

func main() {
	cfg := typesetd.LoadConfig()

	var logger *zap.Logger
	var err error
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if _, err := os.Stat(cfg.ModulePath); err != nil {
		logger.Fatal("compiler module not found",
			zap.String("path", cfg.ModulePath),
			zap.Error(err))
	}

	srv := typesetd.NewServer(cfg, logger)

	logger.Info("typesetd listening",
		zap.String("addr", cfg.Addr),
		zap.String("module", cfg.ModulePath))

	if err := http.ListenAndServe(cfg.Addr, srv.Handler()); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
