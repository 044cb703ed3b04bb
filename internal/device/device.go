// Package device provides the accelerometer sources that feed the fall detector.
// A source is either a serial-connected IMU streaming sample lines or a
// deterministic scripted scenario used for simulation and tests.
package device

import (
	"fmt"

	"go.uber.org/zap"

	"LoraFall/internal/model"
	"LoraFall/internal/parser"
)

// ImuSource yields one accelerometer reading per call.
type ImuSource interface {
	// Read returns the next sample without blocking. ok is false when no
	// sample is available yet.
	Read() (s model.AccelSample, ok bool)

	// Close releases the underlying resources.
	Close() error
}

// Open builds the source described by cfg.
func Open(cfg model.ImuConfig, logger *zap.Logger) (ImuSource, error) {
	switch cfg.Source {
	case "scenario", "":
		return NewScenarioImu(cfg.Scenario, cfg.Loop, 1)
	case "serial":
		p, err := parser.ForFormat(cfg.WireFormat)
		if err != nil {
			return nil, err
		}
		return OpenSerialImu(cfg.Serial, p, logger)
	default:
		return nil, fmt.Errorf("unknown imu source %q", cfg.Source)
	}
}
