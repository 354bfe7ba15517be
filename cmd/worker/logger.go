package main

import (
	"github.com/septivank/battery-drain-worker/internal/config"
	"github.com/septivank/battery-drain-worker/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}
