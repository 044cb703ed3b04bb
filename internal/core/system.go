// Package core contains the runtime orchestration of the LoraFall pipeline.
// It defines the sender Node, the Receiver with its alert sinks, and the
// System that builds and runs them from configuration.
package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"LoraFall/internal/app"
	"LoraFall/internal/device"
	"LoraFall/internal/lora"
	"LoraFall/internal/model"
)

// LoadConfig reads and normalises the YAML configuration at path.
func LoadConfig(path string) (*model.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes and normalises a YAML configuration document.
func ParseConfig(b []byte) (*model.Config, error) {
	var cfg model.Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RadioConfig converts a radio section into driver settings.
func RadioConfig(rc model.RadioConfig) lora.Config {
	cfg := lora.Config{
		FrequencyHz:     rc.FrequencyHz,
		SpreadingFactor: rc.SpreadingFactor,
		BandwidthHz:     rc.BandwidthHz,
		CodingRate:      rc.CodingRate,
		TxPowerDbm:      rc.TxPowerDbm,
		CRC:             true,
		SyncWord:        byte(rc.SyncWord),
		PreambleLength:  uint16(rc.PreambleLength),
	}
	if rc.CRC != nil {
		cfg.CRC = *rc.CRC
	}
	return cfg
}

// System manages the lifecycle of the node, the receiver and the
// receiver's web app built from one configuration.
type System struct {
	cfg    *model.Config
	logger *zap.Logger

	Node     *Node
	Receiver *Receiver
	App      *app.App

	// Ether joins the simulated radios of a single-process run.
	Ether *lora.Ether

	closers []io.Closer

	started   bool
	startLock sync.Mutex
}

// NewSystem constructs the components described by cfg. cfg must already
// be normalised.
func NewSystem(ctx context.Context, cfg *model.Config, logger *zap.Logger) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &System{cfg: cfg, logger: logger}

	if cfg.Receiver != nil {
		if err := s.buildReceiver(ctx, cfg.Receiver); err != nil {
			s.teardown()
			return nil, err
		}
	}
	if cfg.Node != nil {
		if err := s.buildNode(cfg.Node); err != nil {
			s.teardown()
			return nil, err
		}
	}
	return s, nil
}

// openBus returns the register bus for a radio section.
func (s *System) openBus(rc model.RadioConfig) (lora.RegisterBus, error) {
	switch rc.Backend {
	case "serial":
		return lora.OpenSerialBridge(rc.Serial)
	default:
		if s.Ether == nil {
			s.Ether = lora.NewEther()
		}
		return lora.NewSimChip(s.Ether), nil
	}
}

func (s *System) buildNode(nc *model.NodeConfig) error {
	imu, err := device.Open(nc.Imu, s.logger)
	if err != nil {
		return fmt.Errorf("node %s: imu: %w", nc.ID, err)
	}
	bus, err := s.openBus(nc.Radio)
	if err != nil {
		_ = imu.Close()
		return fmt.Errorf("node %s: radio: %w", nc.ID, err)
	}
	node, err := NewNode(NodeOptions{
		ID:             nc.ID,
		Imu:            imu,
		Radio:          lora.NewRadio(bus, nil, s.logger.With(zap.String("node_id", nc.ID))),
		RadioConfig:    RadioConfig(nc.Radio),
		Fall:           nc.Fall,
		QueueCapacity:  nc.QueueCapacity,
		TxTimeout:      ms(nc.TxTimeoutMs),
		PopTimeout:     ms(nc.PopTimeoutMs),
		IdleBackoff:    ms(nc.IdleBackoffMs),
		StatusInterval: ms(nc.StatusIntervalMs),
		Logger:         s.logger,
	})
	if err != nil {
		_ = imu.Close()
		_ = bus.Close()
		return err
	}
	s.Node = node
	return nil
}

func (s *System) buildReceiver(ctx context.Context, rc *model.ReceiverConfig) error {
	sinks := []Sink{NewLogSink(s.logger)}

	if rc.HTTPAddr != "" {
		s.App = app.NewApp(app.DefaultHistory, s.stats, s.logger)
		sinks = append(sinks, s.App)
	}
	if rc.Redis.Addr != "" {
		sink, err := DialRedisStreamSink(ctx, rc.Redis)
		if err != nil {
			return fmt.Errorf("receiver %s: %w", rc.ID, err)
		}
		s.closers = append(s.closers, sink)
		sinks = append(sinks, sink)
	}
	if rc.MQTT.Broker != "" {
		pub, err := DialMQTT(rc.MQTT)
		if err != nil {
			return fmt.Errorf("receiver %s: %w", rc.ID, err)
		}
		sink := NewMQTTSink(pub, rc.MQTT.Topic, rc.MQTT.QoS)
		s.closers = append(s.closers, sink)
		sinks = append(sinks, sink)
	}

	bus, err := s.openBus(rc.Radio)
	if err != nil {
		return fmt.Errorf("receiver %s: radio: %w", rc.ID, err)
	}
	recv, err := NewReceiver(ReceiverOptions{
		ID:               rc.ID,
		Radio:            lora.NewRadio(bus, nil, s.logger.With(zap.String("receiver_id", rc.ID))),
		RadioConfig:      RadioConfig(rc.Radio),
		Sinks:            sinks,
		DeliveryCapacity: rc.DeliveryCapacity,
		RxTimeout:        ms(rc.RxTimeoutMs),
		RxBackoff:        ms(rc.RxBackoffMs),
		Logger:           s.logger,
	})
	if err != nil {
		_ = bus.Close()
		return err
	}
	s.Receiver = recv
	return nil
}

// stats feeds /api/stats.
func (s *System) stats() any {
	out := map[string]any{}
	if s.Receiver != nil {
		out["receiver"] = s.Receiver.Stats()
	}
	if s.Node != nil {
		out["node"] = s.Node.Stats()
	}
	return out
}

// StartAll starts the receiver first so it is listening before the node
// can transmit, then the web app and the node. If any component fails to
// start everything built is torn down and the System cannot be restarted.
func (s *System) StartAll(ctx context.Context) error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}
	if s.Receiver != nil {
		if err := s.Receiver.Start(ctx); err != nil {
			s.teardown()
			return err
		}
	}
	if s.App != nil {
		go func() {
			if err := s.App.Start(s.cfg.Receiver.HTTPAddr); err != nil {
				s.logger.Error("web app stopped", zap.Error(err))
			}
		}()
	}
	if s.Node != nil {
		if err := s.Node.Start(ctx); err != nil {
			s.teardown()
			return err
		}
	}
	s.started = true
	return nil
}

// StopAll stops all running components and releases sink connections.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		return
	}
	s.teardown()
	s.started = false
}

// teardown stops every built component, closing its radio and IMU, and
// releases sink connections. Components that never started are only closed.
func (s *System) teardown() {
	if s.Node != nil {
		s.Node.Stop()
	}
	if s.Receiver != nil {
		s.Receiver.Stop()
	}
	if s.App != nil {
		s.App.Stop()
	}
	s.closeAll()
}

func (s *System) closeAll() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
	s.closers = nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
