// Receiver node: listens for fall alerts and hands them to the configured
// sinks (log, web app, Redis stream, MQTT). Only the receiver section of
// the configuration is used.
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
	httpAddr := flag.String("http", "", "override the web app listen address")
	flag.Parse()

	cfg, err := core.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Receiver == nil {
		fmt.Fprintln(os.Stderr, "config has no receiver section")
		os.Exit(1)
	}
	cfg.Node = nil
	if *httpAddr != "" {
		cfg.Receiver.HTTPAddr = *httpAddr
	}

	logger, err := util.NewLogger(cfg.Global.LogLevel, cfg.Global.LogFormat, cfg.Global.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := core.NewSystem(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create receiver", zap.Error(err))
	}
	if err := sys.StartAll(ctx); err != nil {
		logger.Fatal("failed to start receiver", zap.Error(err))
	}
	<-ctx.Done()
	sys.StopAll()
}
