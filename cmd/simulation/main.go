// IMU simulator: writes a scripted motion scenario as sample lines into a
// serial device. Use this for local testing without accelerometer hardware.
// With -virtual it first creates a socat PTY pair and writes into one end;
// point the node's imu serial device at the other.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"LoraFall/internal/device"
	"LoraFall/internal/model"
	"LoraFall/internal/parser"
	"LoraFall/internal/util"
)

func main() {
	dev := flag.String("dev", "/dev/ttyUSB1", "serial device to write samples into")
	baud := flag.Int("baud", 115200, "baud rate")
	scenario := flag.String("scenario", "fall", "scenario: "+strings.Join(device.ScenarioNames(), ", "))
	format := flag.String("format", "csv", "wire format: csv or json")
	interval := flag.Int("interval", 10, "ms between samples")
	loop := flag.Bool("loop", false, "repeat the scenario")
	seed := flag.Int64("seed", 1, "noise seed")
	virtual := flag.String("virtual", "", "create a socat pair \"write,read\" and write into the first path")
	level := flag.String("log", "info", "log level")
	flag.Parse()

	logger, err := util.NewLogger(*level, "console", "lorafall-sim")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	p, err := parser.ForFormat(*format)
	if err != nil {
		logger.Fatal("bad format", zap.Error(err))
	}
	imu, err := device.NewScenarioImu(*scenario, *loop, *seed)
	if err != nil {
		logger.Fatal("bad scenario", zap.Error(err))
	}

	if *virtual != "" {
		ends := strings.Split(*virtual, ",")
		if len(ends) != 2 {
			logger.Fatal("-virtual wants two comma separated paths")
		}
		socat := util.NewSocatManager(logger)
		defer socat.Cleanup()
		if err := socat.CreatePair(ends[0], ends[1], 3*time.Second); err != nil {
			logger.Fatal("create virtual pair", zap.Error(err))
		}
		*dev = ends[0]
		logger.Info("virtual imu ready", zap.String("read_from", ends[1]))
	}

	port, err := util.OpenSerial(model.SerialConfig{Device: *dev, Baud: *baud})
	if err != nil {
		logger.Fatal("open serial", zap.Error(err))
	}
	defer func() {
		if cerr := port.Close(); cerr != nil {
			logger.Warn("close serial", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("simulator started",
		zap.String("device", *dev),
		zap.String("scenario", *scenario),
		zap.Int("interval_ms", *interval),
	)
	sim := &device.Simulator{
		Out:    port,
		Parser: p,
		Imu:    imu,
		Period: time.Duration(*interval) * time.Millisecond,
		Logger: logger,
	}
	n, err := sim.Run(ctx)
	if err != nil {
		logger.Error("simulation failed", zap.Error(err))
	}
	logger.Info("simulator stopped", zap.Int("lines", n))
}
