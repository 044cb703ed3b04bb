package lora

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"LoraFall/internal/timeutil"
)

const (
	resetSettle  = 10 * time.Millisecond
	pollInterval = time.Millisecond
)

// Radio is the register-level SX1276 driver. A Radio exclusively owns its
// bus; operations are serialised.
type Radio struct {
	mu     sync.Mutex
	bus    RegisterBus
	clock  timeutil.Clock
	logger *zap.Logger

	state   atomic.Int32
	cfg     Config
	version byte
	rssi    int
	snr     float64
}

var _ Transceiver = (*Radio)(nil)

// NewRadio returns an uninitialised driver on bus. A nil clock means real
// time and a nil logger discards output.
func NewRadio(bus RegisterBus, clock timeutil.Clock, logger *zap.Logger) *Radio {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Radio{
		bus:    bus,
		clock:  timeutil.OrReal(clock),
		logger: logger.With(zap.String("component", "lora")),
	}
}

// State returns the current session state.
func (r *Radio) State() State { return State(r.state.Load()) }

func (r *Radio) setState(s State) { r.state.Store(int32(s)) }

// Version returns the chip revision read by the last successful Init.
func (r *Radio) Version() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// PacketStatus returns RSSI and SNR of the last received packet.
func (r *Radio) PacketStatus() (int, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rssi, r.snr
}

// Init checks the chip's version register, resets the chip, checks the
// version again and programs cfg. An invalid cfg or an unreadable chip is
// rejected before anything is written, leaving the radio in its previous
// state. A failure after the reset leaves the radio Uninitialized.
func (r *Radio) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.readVersion(); err != nil {
		return err
	}
	r.setState(Uninitialized)

	if err := r.bus.Reset(); err != nil {
		return fmt.Errorf("lora: reset: %w", err)
	}
	r.clock.Sleep(resetSettle)

	v, err := r.readVersion()
	if err != nil {
		return err
	}
	if v != ChipVersionSX1276 {
		r.logger.Warn("unexpected chip version", zap.String("version", fmt.Sprintf("0x%02X", v)))
	}

	// LoRa mode can only be selected while sleeping.
	if err := r.bus.WriteRegister(RegOpMode, ModeLongRange|ModeSleep); err != nil {
		return fmt.Errorf("lora: enter sleep: %w", err)
	}
	r.clock.Sleep(resetSettle)

	pa, power := cfg.paConfig()
	if power != cfg.TxPowerDbm {
		r.logger.Warn("tx power clamped", zap.Int("requested_dbm", cfg.TxPowerDbm), zap.Int("applied_dbm", power))
	}
	frf := cfg.frf()
	err = r.writeRegs(
		RegOpMode, ModeLongRange|ModeStdby,
		RegFrfMsb, byte(frf>>16),
		RegFrfMid, byte(frf>>8),
		RegFrfLsb, byte(frf),
		RegModemConfig1, cfg.modemConfig1(),
		RegModemConfig2, cfg.modemConfig2(),
		RegModemConfig3, cfg.modemConfig3(),
		RegPreambleMsb, byte(cfg.PreambleLength>>8),
		RegPreambleLsb, byte(cfg.PreambleLength),
		RegSyncWord, cfg.SyncWord,
		RegFifoTxBaseAddr, fifoTxBase,
		RegFifoRxBaseAddr, fifoRxBase,
		RegPaConfig, pa,
		RegPaDac, paDacBoost,
		RegOcp, ocpOn100mA,
		RegLna, lnaMaxGain,
		RegDioMapping1, 0x00,
		RegIrqFlagsMask, ^irqEnabledMask,
		RegHopPeriod, 0x00,
		RegDetectOptimize, detectOptimizeSF7to12,
		RegDetectionThresh, detectThreshSF7to12,
		RegIrqFlags, 0xFF,
	)
	if err != nil {
		return fmt.Errorf("lora: configure: %w", err)
	}

	r.cfg = cfg
	r.version = v
	r.setState(Idle)
	r.logger.Info("radio initialised",
		zap.Uint32("frequency_hz", cfg.FrequencyHz),
		zap.Int("sf", cfg.SpreadingFactor),
		zap.Int("bandwidth_hz", cfg.BandwidthHz),
		zap.Int("tx_power_dbm", power),
		zap.Bool("crc", cfg.CRC),
	)
	return nil
}

// Send transmits payload and waits for TxDone. The radio is back in
// standby and Idle on return, whatever the outcome.
func (r *Radio) Send(payload []byte, timeout time.Duration) (err error) {
	if len(payload) == 0 || len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(payload))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Idle {
		return ErrNotInitialized
	}
	defer func() {
		if serr := r.settle(); serr != nil && err == nil {
			err = serr
		}
	}()

	err = r.writeRegs(
		RegOpMode, ModeLongRange|ModeStdby,
		RegIrqFlags, 0xFF,
		RegFifoAddrPtr, fifoTxBase,
		RegPayloadLength, byte(len(payload)),
	)
	if err != nil {
		return fmt.Errorf("lora: prepare tx: %w", err)
	}
	if err := r.bus.WriteBurst(RegFifo, payload); err != nil {
		return fmt.Errorf("lora: fill fifo: %w", err)
	}

	r.setState(Transmitting)
	if err := r.bus.WriteRegister(RegOpMode, ModeLongRange|ModeTx); err != nil {
		return fmt.Errorf("lora: start tx: %w", err)
	}
	if _, err := r.waitIRQ(IrqTxDone, timeout); err != nil {
		return fmt.Errorf("lora: tx: %w", err)
	}
	return nil
}

// Receive opens a single receive window and copies the packet into buf.
// Packets longer than buf are truncated; the copied length is returned.
// The radio is back in standby and Idle on return.
func (r *Radio) Receive(buf []byte, timeout time.Duration) (n int, err error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty receive buffer", ErrPayloadSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Idle {
		return 0, ErrNotInitialized
	}
	defer func() {
		if serr := r.settle(); serr != nil && err == nil {
			n, err = 0, serr
		}
	}()

	err = r.writeRegs(
		RegOpMode, ModeLongRange|ModeStdby,
		RegIrqFlags, 0xFF,
		RegFifoAddrPtr, fifoRxBase,
	)
	if err != nil {
		return 0, fmt.Errorf("lora: prepare rx: %w", err)
	}

	r.setState(Receiving)
	if err := r.bus.WriteRegister(RegOpMode, ModeLongRange|ModeRxSingle); err != nil {
		return 0, fmt.Errorf("lora: start rx: %w", err)
	}
	flags, err := r.waitIRQ(irqReceiveMask, timeout)
	if err != nil {
		return 0, err
	}
	switch {
	case flags&IrqRxTimeout != 0:
		return 0, ErrRxTimeout
	case flags&IrqPayloadCrcError != 0:
		return 0, ErrCRC
	}

	count, err := r.bus.ReadRegister(RegRxNbBytes)
	if err != nil {
		return 0, fmt.Errorf("lora: read length: %w", err)
	}
	cur, err := r.bus.ReadRegister(RegFifoRxCurrentAddr)
	if err != nil {
		return 0, fmt.Errorf("lora: read fifo addr: %w", err)
	}
	if err := r.bus.WriteRegister(RegFifoAddrPtr, cur); err != nil {
		return 0, fmt.Errorf("lora: set fifo addr: %w", err)
	}
	n = min(int(count), len(buf))
	if err := r.bus.ReadBurst(RegFifo, buf[:n]); err != nil {
		return 0, fmt.Errorf("lora: read fifo: %w", err)
	}
	if int(count) > n {
		r.logger.Debug("rx payload truncated", zap.Int("length", int(count)), zap.Int("buffer", n))
	}
	r.readPacketStatus()
	return n, nil
}

// Close puts the chip to sleep and releases the bus.
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.State() != Uninitialized {
		_ = r.bus.WriteRegister(RegOpMode, ModeLongRange|ModeSleep)
	}
	r.setState(Uninitialized)
	return r.bus.Close()
}

// readVersion reads RegVersion and rejects the values of an absent chip.
func (r *Radio) readVersion() (byte, error) {
	v, err := r.bus.ReadRegister(RegVersion)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadVersion, err)
	}
	if v == 0x00 || v == 0xFF {
		return 0, fmt.Errorf("%w: 0x%02X", ErrBadVersion, v)
	}
	return v, nil
}

// waitIRQ blocks until one of mask's flags is raised or timeout elapses.
// A non-positive timeout checks the flags once.
func (r *Radio) waitIRQ(mask byte, timeout time.Duration) (byte, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := r.clock.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C()
	}
	irq := r.bus.IRQ()

	for {
		flags, err := r.bus.ReadRegister(RegIrqFlags)
		if err != nil {
			return 0, fmt.Errorf("lora: read irq flags: %w", err)
		}
		if flags&mask != 0 {
			return flags, nil
		}
		if deadline == nil {
			return 0, ErrTimeout
		}

		var poll timeutil.Timer
		var pollC <-chan time.Time
		if irq == nil {
			poll = r.clock.NewTimer(pollInterval)
			pollC = poll.C()
		}
		select {
		case <-irq:
		case <-pollC:
		case <-deadline:
			if poll != nil {
				poll.Stop()
			}
			// an edge may have raced the deadline
			if flags, err := r.bus.ReadRegister(RegIrqFlags); err == nil && flags&mask != 0 {
				return flags, nil
			}
			return 0, ErrTimeout
		}
		if poll != nil {
			poll.Stop()
		}
	}
}

// settle returns the chip to standby with interrupts cleared and marks the
// session Idle even if the bus fails.
func (r *Radio) settle() error {
	defer r.setState(Idle)
	if err := r.bus.WriteRegister(RegOpMode, ModeLongRange|ModeStdby); err != nil {
		r.logger.Error("return to standby failed", zap.Error(err))
		return fmt.Errorf("lora: standby: %w", err)
	}
	if err := r.bus.WriteRegister(RegIrqFlags, 0xFF); err != nil {
		return fmt.Errorf("lora: clear irq: %w", err)
	}
	return nil
}

func (r *Radio) readPacketStatus() {
	rawSNR, err := r.bus.ReadRegister(RegPktSnrValue)
	if err != nil {
		return
	}
	rawRSSI, err := r.bus.ReadRegister(RegPktRssiValue)
	if err != nil {
		return
	}
	snr := float64(int8(rawSNR)) / 4
	offset := -157
	if r.cfg.lowFrequencyPort() {
		offset = -164
	}
	rssi := offset + int(rawRSSI)
	if snr < 0 {
		rssi += int(snr)
	}
	r.rssi, r.snr = rssi, snr
}

// writeRegs writes address/value pairs in order.
func (r *Radio) writeRegs(pairs ...byte) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := r.bus.WriteRegister(pairs[i], pairs[i+1]); err != nil {
			return fmt.Errorf("register 0x%02X: %w", pairs[i], err)
		}
	}
	return nil
}
