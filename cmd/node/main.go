// Sender node: samples the IMU, detects falls and transmits alerts.
// Only the node section of the configuration is used.
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
	scenario := flag.String("scenario", "", "override the scripted imu scenario")
	imuDev := flag.String("imu", "", "read the imu from this serial device instead")
	flag.Parse()

	cfg, err := core.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Node == nil {
		fmt.Fprintln(os.Stderr, "config has no node section")
		os.Exit(1)
	}
	cfg.Receiver = nil
	if *scenario != "" {
		cfg.Node.Imu.Source, cfg.Node.Imu.Scenario = "scenario", *scenario
	}
	if *imuDev != "" {
		cfg.Node.Imu.Source, cfg.Node.Imu.Serial.Device = "serial", *imuDev
	}

	logger, err := util.NewLogger(cfg.Global.LogLevel, cfg.Global.LogFormat, cfg.Global.Service)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.Node.Radio.Backend == "sim" {
		logger.Warn("simulated radio has no peer in a node-only run; alerts go nowhere")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := core.NewSystem(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to create node", zap.Error(err))
	}
	if err := sys.StartAll(ctx); err != nil {
		logger.Fatal("failed to start node", zap.Error(err))
	}
	<-ctx.Done()
	sys.StopAll()
}
