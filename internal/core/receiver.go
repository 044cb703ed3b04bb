package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"LoraFall/internal/lora"
	"LoraFall/internal/model"
	"LoraFall/internal/packet"
	"LoraFall/internal/queue"
	"LoraFall/internal/timeutil"
)

const defaultSinkTimeout = 2 * time.Second

// ReceiverOptions configures a receiver node. Zero durations take the
// firmware defaults from package model.
type ReceiverOptions struct {
	ID               string
	Radio            lora.Transceiver
	RadioConfig      lora.Config
	Sinks            []Sink
	DeliveryCapacity int

	RxTimeout   time.Duration
	RxBackoff   time.Duration
	PopTimeout  time.Duration
	SinkTimeout time.Duration

	Clock  timeutil.Clock
	Logger *zap.Logger
}

// ReceiverStats are the receiver counters.
type ReceiverStats struct {
	Frames      uint64 `json:"frames"`
	Malformed   uint64 `json:"malformed"`
	RxTimeouts  uint64 `json:"rx_timeouts"`
	CRCErrors   uint64 `json:"crc_errors"`
	RadioErrors uint64 `json:"radio_errors"`
	Evicted     uint64 `json:"evicted"`
	Delivered   uint64 `json:"delivered"`
	SinkErrors  uint64 `json:"sink_errors"`
}

// Receiver listens for alert frames, decodes them and hands the resulting
// alerts to its sinks.
type Receiver struct {
	ID string

	opts       ReceiverOptions
	deliveries *queue.Queue[model.Alert]
	clock      timeutil.Clock
	logger     *zap.Logger

	frames      atomic.Uint64
	malformed   atomic.Uint64
	rxTimeouts  atomic.Uint64
	crcErrors   atomic.Uint64
	radioErrors atomic.Uint64
	delivered   atomic.Uint64
	sinkErrors  atomic.Uint64

	mu       sync.Mutex
	started  bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReceiver builds an idle receiver.
func NewReceiver(opts ReceiverOptions) (*Receiver, error) {
	if opts.Radio == nil {
		return nil, errors.New("receiver: radio is required")
	}
	setDuration(&opts.RxTimeout, model.DefaultRxTimeoutMs)
	setDuration(&opts.RxBackoff, model.DefaultRxBackoffMs)
	setDuration(&opts.PopTimeout, model.DefaultPopTimeoutMs)
	if opts.SinkTimeout <= 0 {
		opts.SinkTimeout = defaultSinkTimeout
	}
	if opts.DeliveryCapacity <= 0 {
		opts.DeliveryCapacity = model.DefaultQueueCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := timeutil.OrReal(opts.Clock)
	return &Receiver{
		ID:         opts.ID,
		opts:       opts,
		deliveries: queue.New[model.Alert](opts.DeliveryCapacity, clock),
		clock:      clock,
		logger:     logger.With(zap.String("component", "receiver"), zap.String("receiver_id", opts.ID)),
		stop:       make(chan struct{}),
	}, nil
}

// Start initialises the radio and launches the receive and deliver loops.
func (r *Receiver) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("receiver %s: already started", r.ID)
	}
	if err := r.opts.Radio.Init(r.opts.RadioConfig); err != nil {
		r.logger.Error("radio init failed", zap.Error(err))
		return fmt.Errorf("receiver %s: radio init: %w", r.ID, err)
	}
	r.started = true

	r.wg.Add(2)
	go r.receiveLoop(ctx)
	go r.deliverLoop(ctx)

	names := make([]string, len(r.opts.Sinks))
	for i, s := range r.opts.Sinks {
		names[i] = s.Name()
	}
	r.logger.Info("receiver started", zap.Strings("sinks", names))
	return nil
}

// Stop ends the loops and closes the radio. Alerts still queued for
// delivery are discarded. Safe to call more than once.
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.wg.Wait()
		if err := r.opts.Radio.Close(); err != nil {
			r.logger.Warn("radio close failed", zap.Error(err))
		}
		r.logger.Info("receiver stopped", zap.Any("stats", r.Stats()))
	})
}

// Stats returns a snapshot of the receiver counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Frames:      r.frames.Load(),
		Malformed:   r.malformed.Load(),
		RxTimeouts:  r.rxTimeouts.Load(),
		CRCErrors:   r.crcErrors.Load(),
		RadioErrors: r.radioErrors.Load(),
		Evicted:     r.deliveries.Dropped(),
		Delivered:   r.delivered.Load(),
		SinkErrors:  r.sinkErrors.Load(),
	}
}

func (r *Receiver) done(ctx context.Context) bool {
	select {
	case <-r.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Receiver) receiveLoop(ctx context.Context) {
	defer r.wg.Done()
	buf := make([]byte, lora.MaxPayload)
	for !r.done(ctx) {
		n, err := r.opts.Radio.Receive(buf, r.opts.RxTimeout)
		if err != nil {
			r.classify(err)
			if !lora.IsTransient(err) {
				r.backoff(ctx)
			}
			continue
		}

		ev, err := packet.DecodeAlert(buf[:n])
		if err != nil {
			r.malformed.Add(1)
			r.logger.Warn("malformed frame", zap.Int("length", n), zap.Binary("frame", buf[:n]), zap.Error(err))
			continue
		}
		r.frames.Add(1)
		rssi, snr := r.opts.Radio.PacketStatus()
		alert := model.Alert{
			ID:         uuid.NewString(),
			Receiver:   r.ID,
			Event:      ev,
			RSSI:       rssi,
			SNR:        snr,
			ReceivedAt: r.clock.Now().UTC(),
		}
		before := r.deliveries.Dropped()
		r.deliveries.Push(alert)
		if r.deliveries.Dropped() != before {
			r.logger.Warn("delivery queue full, oldest alert dropped")
		}
	}
}

// classify counts a receive failure. Timeouts and CRC errors are expected
// on an idle or noisy channel and stay at debug level.
func (r *Receiver) classify(err error) {
	switch {
	case errors.Is(err, lora.ErrCRC):
		r.crcErrors.Add(1)
		r.logger.Debug("frame with bad crc discarded")
	case errors.Is(err, lora.ErrTimeout):
		r.rxTimeouts.Add(1)
	default:
		r.radioErrors.Add(1)
		r.logger.Warn("receive failed", zap.Error(err))
	}
}

func (r *Receiver) deliverLoop(ctx context.Context) {
	defer r.wg.Done()
	for !r.done(ctx) {
		alert, ok := r.deliveries.Pop(r.opts.PopTimeout)
		if !ok {
			continue
		}
		r.deliver(ctx, alert)
	}
}

func (r *Receiver) deliver(ctx context.Context, alert model.Alert) {
	r.logger.Info("fall alert received",
		zap.String("alert_id", alert.ID),
		zap.Uint32("epoch_ms", alert.Event.EpochMs),
		zap.Int("rssi_dbm", alert.RSSI),
		zap.Float64("snr_db", alert.SNR),
	)
	ok := true
	for _, sink := range r.opts.Sinks {
		sctx, cancel := context.WithTimeout(ctx, r.opts.SinkTimeout)
		err := sink.Deliver(sctx, alert)
		cancel()
		if err != nil {
			ok = false
			r.sinkErrors.Add(1)
			r.logger.Warn("sink delivery failed", zap.String("sink", sink.Name()), zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
	if ok {
		r.delivered.Add(1)
	}
}

func (r *Receiver) backoff(ctx context.Context) {
	t := r.clock.NewTimer(r.opts.RxBackoff)
	defer t.Stop()
	select {
	case <-r.stop:
	case <-ctx.Done():
	case <-t.C():
	}
}
