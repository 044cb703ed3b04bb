package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"LoraFall/internal/detector"
	"LoraFall/internal/device"
	"LoraFall/internal/lora"
	"LoraFall/internal/model"
	"LoraFall/internal/packet"
	"LoraFall/internal/queue"
	"LoraFall/internal/timeutil"
)

// NodeOptions configures a sender node. Zero durations take the firmware
// defaults from package model.
type NodeOptions struct {
	ID            string
	Imu           device.ImuSource
	Radio         lora.Transceiver
	RadioConfig   lora.Config
	Fall          model.FallConfig
	QueueCapacity int

	// SamplePeriod defaults to one period of Fall.SampleRateHz.
	SamplePeriod   time.Duration
	TxTimeout      time.Duration
	PopTimeout     time.Duration
	IdleBackoff    time.Duration
	StatusInterval time.Duration

	Clock  timeutil.Clock
	Logger *zap.Logger
}

// NodeStats are the sender counters reported by the housekeeping loop.
type NodeStats struct {
	Samples      uint64 `json:"samples"`
	MissedReads  uint64 `json:"missed_reads"`
	Events       uint64 `json:"events"`
	Evicted      uint64 `json:"evicted"`
	Sent         uint64 `json:"sent"`
	SendFailures uint64 `json:"send_failures"`
}

// Node is the wearable side of the link: it samples the IMU, runs the
// fall detector and transmits confirmed events over the radio.
type Node struct {
	ID string

	opts   NodeOptions
	engine *detector.Engine
	queue  *queue.AlertQueue
	clock  timeutil.Clock
	logger *zap.Logger

	samples      atomic.Uint64
	missed       atomic.Uint64
	events       atomic.Uint64
	sent         atomic.Uint64
	sendFailures atomic.Uint64

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNode validates opts and builds an idle node. The detector
// configuration is checked here so a bad sample rate fails at construction.
func NewNode(opts NodeOptions) (*Node, error) {
	if opts.Imu == nil || opts.Radio == nil {
		return nil, errors.New("node: imu and radio are required")
	}
	engine, err := detector.New(opts.Fall)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", opts.ID, err)
	}
	if opts.SamplePeriod <= 0 {
		opts.SamplePeriod = time.Second / time.Duration(opts.Fall.SampleRateHz)
	}
	setDuration(&opts.TxTimeout, model.DefaultTxTimeoutMs)
	setDuration(&opts.PopTimeout, model.DefaultPopTimeoutMs)
	setDuration(&opts.IdleBackoff, model.DefaultIdleBackoffMs)
	setDuration(&opts.StatusInterval, model.DefaultStatusIntervalMs)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := timeutil.OrReal(opts.Clock)
	return &Node{
		ID:     opts.ID,
		opts:   opts,
		engine: engine,
		queue:  queue.New[model.FallEvent](opts.QueueCapacity, clock),
		clock:  clock,
		logger: logger.With(zap.String("component", "node"), zap.String("node_id", opts.ID)),
		stop:   make(chan struct{}),
	}, nil
}

// Start initialises the radio and launches the sample, transmit and
// housekeeping loops. When the radio fails to initialise nothing is started.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return fmt.Errorf("node %s: already started", n.ID)
	}
	if err := n.opts.Radio.Init(n.opts.RadioConfig); err != nil {
		n.logger.Error("radio init failed", zap.Error(err))
		return fmt.Errorf("node %s: radio init: %w", n.ID, err)
	}
	n.started = true

	n.wg.Add(3)
	go n.sampleLoop(ctx)
	go n.transmitLoop(ctx)
	go n.statusLoop(ctx)

	n.logger.Info("node started",
		zap.Duration("sample_period", n.opts.SamplePeriod),
		zap.Int("queue_capacity", n.queue.Cap()),
	)
	return nil
}

// Stop ends the loops and closes the IMU and radio. It is safe to call
// more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stop)
		n.wg.Wait()
		if err := n.opts.Imu.Close(); err != nil {
			n.logger.Warn("imu close failed", zap.Error(err))
		}
		if err := n.opts.Radio.Close(); err != nil {
			n.logger.Warn("radio close failed", zap.Error(err))
		}
		n.logger.Info("node stopped", zap.Any("stats", n.Stats()))
	})
}

// Stats returns a snapshot of the node counters.
func (n *Node) Stats() NodeStats {
	return NodeStats{
		Samples:      n.samples.Load(),
		MissedReads:  n.missed.Load(),
		Events:       n.events.Load(),
		Evicted:      n.queue.Dropped(),
		Sent:         n.sent.Load(),
		SendFailures: n.sendFailures.Load(),
	}
}

// Queue exposes the pending alert queue.
func (n *Node) Queue() *queue.AlertQueue { return n.queue }

func (n *Node) done(ctx context.Context) bool {
	select {
	case <-n.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sampleLoop feeds one IMU reading to the detector per sample period.
func (n *Node) sampleLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := n.clock.NewTicker(n.opts.SamplePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		s, ok := n.opts.Imu.Read()
		if !ok {
			n.missed.Add(1)
			continue
		}
		n.samples.Add(1)
		ev, ok := n.engine.Feed(s)
		if !ok {
			continue
		}
		n.events.Add(1)
		before := n.queue.Dropped()
		n.queue.Push(ev)
		if n.queue.Dropped() != before {
			n.logger.Warn("alert queue full, oldest event dropped")
		}
		n.logger.Info("fall detected",
			zap.Uint32("epoch_ms", ev.EpochMs),
			zap.Int16("peak_centi_g", ev.PeakCentiG),
			zap.Uint16("idle_ms", ev.IdleMs),
		)
	}
}

// transmitLoop drains the alert queue onto the radio.
func (n *Node) transmitLoop(ctx context.Context) {
	defer n.wg.Done()
	var frame [packet.FrameSize]byte
	for !n.done(ctx) {
		ev, ok := n.queue.Pop(n.opts.PopTimeout)
		if !ok {
			n.backoff(ctx, n.opts.IdleBackoff)
			continue
		}
		size, err := packet.EncodeAlert(ev, frame[:])
		if err != nil {
			n.logger.Error("encode alert failed", zap.Error(err))
			continue
		}
		if err := n.opts.Radio.Send(frame[:size], n.opts.TxTimeout); err != nil {
			n.sendFailures.Add(1)
			n.logger.Warn("alert send failed, event dropped", zap.Uint32("epoch_ms", ev.EpochMs), zap.Error(err))
			continue
		}
		n.sent.Add(1)
		n.logger.Debug("alert sent", zap.Uint32("epoch_ms", ev.EpochMs))
	}
}

// statusLoop periodically logs the node counters.
func (n *Node) statusLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := n.clock.NewTicker(n.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			n.logger.Info("node status",
				zap.Any("stats", n.Stats()),
				zap.Int("queued", n.queue.Len()),
				zap.Stringer("radio", n.opts.Radio.State()),
			)
		}
	}
}

// backoff waits for d unless the node is stopping.
func (n *Node) backoff(ctx context.Context, d time.Duration) {
	t := n.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-n.stop:
	case <-ctx.Done():
	case <-t.C():
	}
}

func setDuration(d *time.Duration, defMs int) {
	if *d <= 0 {
		*d = time.Duration(defMs) * time.Millisecond
	}
}
