// Package main is the entry point of the LoraFall system.
// It loads the configuration, initializes the logger, constructs the sender
// node and the receiver and runs them until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"LoraFall/internal/core"
	"LoraFall/internal/util"
)

func main() {
	cfgPath := flag.String("c", "configs/config.yml", "path to configuration file")
	flag.Parse()

	cfg, err := core.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := util.NewLogger(cfg.Global.LogLevel, cfg.Global.LogFormat, cfg.Global.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("using config", zap.String("path", *cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := core.NewSystem(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create system", zap.Error(err))
	}
	if err := sys.StartAll(ctx); err != nil {
		logger.Fatal("failed to start system", zap.Error(err))
	}

	<-ctx.Done()
	logger.Info("shutting down system")
	sys.StopAll()
	logger.Info("system stopped cleanly")
}
