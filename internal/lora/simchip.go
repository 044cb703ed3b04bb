package lora

import (
	"sync"
)

const (
	simInboxDepth = 16
	// lfPortFrf is the carrier word for 525 MHz, the LF/HF port boundary.
	lfPortFrf = 525000000 << 19 / crystalHz
)

// simFrame is a packet in flight on an Ether.
type simFrame struct {
	payload []byte
	frf     uint32
	corrupt bool
}

// Ether is the shared medium joining simulated chips. A frame transmitted
// by one chip is heard by every other attached chip tuned to the same
// carrier.
type Ether struct {
	mu      sync.Mutex
	chips   []*SimChip
	rssi    int
	snr     float64
	corrupt int
}

// NewEther returns an empty medium with a strong, clean signal.
func NewEther() *Ether {
	return &Ether{rssi: -60, snr: 9.5}
}

// SetSignal sets the RSSI (dBm) and SNR (dB) reported for delivered frames.
func (e *Ether) SetSignal(rssi int, snr float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rssi, e.snr = rssi, snr
}

// CorruptNext makes the next n transmitted frames arrive with a payload CRC error.
func (e *Ether) CorruptNext(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.corrupt += n
}

func (e *Ether) attach(c *SimChip) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chips = append(e.chips, c)
}

func (e *Ether) detach(c *SimChip) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, x := range e.chips {
		if x == c {
			e.chips = append(e.chips[:i], e.chips[i+1:]...)
			return
		}
	}
}

func (e *Ether) broadcast(from *SimChip, f simFrame) {
	e.mu.Lock()
	if e.corrupt > 0 {
		e.corrupt--
		f.corrupt = true
	}
	rssi, snr := e.rssi, e.snr
	targets := make([]*SimChip, 0, len(e.chips))
	for _, c := range e.chips {
		if c != from {
			targets = append(targets, c)
		}
	}
	e.mu.Unlock()

	for _, c := range targets {
		c.hear(f, rssi, snr)
	}
}

// SimChip is a RegisterBus backed by a software model of the SX1276 LoRa
// modem: register file, 256-byte FIFO with auto-incrementing pointer,
// operating modes and IRQ flags with write-one-to-clear semantics.
//
// Transmission completes instantly. Frames that arrive while the chip is
// not listening are held (up to a small depth) and delivered when the next
// receive window opens.
type SimChip struct {
	mu    sync.Mutex
	ether *Ether
	regs  [0x80]byte
	fifo  [256]byte
	irq   chan struct{}
	inbox []heardFrame

	version     byte
	dropTxDone  bool
	rxTimeouts  int
	resets      int
	transmitted [][]byte
	closed      bool
}

type heardFrame struct {
	simFrame
	rssi int
	snr  float64
}

var _ RegisterBus = (*SimChip)(nil)

// NewSimChip powers up a chip attached to ether.
func NewSimChip(ether *Ether) *SimChip {
	c := &SimChip{
		ether:   ether,
		irq:     make(chan struct{}, 1),
		version: ChipVersionSX1276,
	}
	c.powerOn()
	if ether != nil {
		ether.attach(c)
	}
	return c
}

// powerOn loads the datasheet reset values of the registers the model uses.
func (c *SimChip) powerOn() {
	c.regs = [0x80]byte{}
	c.fifo = [256]byte{}
	c.regs[RegOpMode] = 0x09
	c.regs[RegFrfMsb], c.regs[RegFrfMid], c.regs[RegFrfLsb] = 0x6C, 0x80, 0x00
	c.regs[RegPaConfig] = 0x4F
	c.regs[RegOcp] = 0x2B
	c.regs[RegLna] = 0x20
	c.regs[RegFifoTxBaseAddr] = 0x80
	c.regs[RegModemConfig1] = 0x72
	c.regs[RegModemConfig2] = 0x70
	c.regs[RegPreambleLsb] = 0x08
	c.regs[RegPayloadLength] = 0x01
	c.regs[RegDetectOptimize] = 0xC3
	c.regs[RegDetectionThresh] = 0x0A
	c.regs[RegSyncWord] = 0x12
	c.regs[RegPaDac] = 0x84
}

// ReadRegister implements RegisterBus.
func (c *SimChip) ReadRegister(addr byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(addr & 0x7F), nil
}

// WriteRegister implements RegisterBus.
func (c *SimChip) WriteRegister(addr, value byte) error {
	c.mu.Lock()
	out := c.writeLocked(addr&0x7F, value)
	c.mu.Unlock()
	if out != nil && c.ether != nil {
		c.ether.broadcast(c, *out)
	}
	return nil
}

// ReadBurst implements RegisterBus.
func (c *SimChip) ReadBurst(addr byte, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range buf {
		buf[i] = c.readLocked(addr & 0x7F)
	}
	return nil
}

// WriteBurst implements RegisterBus.
func (c *SimChip) WriteBurst(addr byte, data []byte) error {
	for _, b := range data {
		if err := c.WriteRegister(addr, b); err != nil {
			return err
		}
	}
	return nil
}

// Reset implements RegisterBus. Frames already heard stay queued.
func (c *SimChip) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerOn()
	c.resets++
	return nil
}

// IRQ implements RegisterBus.
func (c *SimChip) IRQ() <-chan struct{} { return c.irq }

// Close implements RegisterBus.
func (c *SimChip) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already && c.ether != nil {
		c.ether.detach(c)
	}
	return nil
}

// SetVersion overrides the value reported by RegVersion.
func (c *SimChip) SetVersion(v byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = v
}

// SetDropTxDone makes transmissions complete without raising TxDone.
func (c *SimChip) SetDropTxDone(drop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropTxDone = drop
}

// InjectRxTimeouts makes the next n receive windows end with RxTimeout.
func (c *SimChip) InjectRxTimeouts(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rxTimeouts += n
}

// Peek returns a register value without FIFO side effects.
func (c *SimChip) Peek(addr byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if addr == RegVersion {
		return c.version
	}
	return c.regs[addr&0x7F]
}

// Transmitted returns copies of all payloads sent by this chip.
func (c *SimChip) Transmitted() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.transmitted))
	for i, p := range c.transmitted {
		out[i] = append([]byte(nil), p...)
	}
	return out
}

// Resets returns how many times the reset line was pulsed.
func (c *SimChip) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Pending returns the number of heard frames not yet received.
func (c *SimChip) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inbox)
}

func (c *SimChip) readLocked(addr byte) byte {
	switch addr {
	case RegFifo:
		ptr := c.regs[RegFifoAddrPtr]
		c.regs[RegFifoAddrPtr] = ptr + 1
		return c.fifo[ptr]
	case RegVersion:
		return c.version
	default:
		return c.regs[addr]
	}
}

// writeLocked applies a register write and returns a frame to put on the
// ether when the write started a transmission.
func (c *SimChip) writeLocked(addr, value byte) *simFrame {
	switch addr {
	case RegFifo:
		ptr := c.regs[RegFifoAddrPtr]
		c.fifo[ptr] = value
		c.regs[RegFifoAddrPtr] = ptr + 1
	case RegIrqFlags:
		c.regs[RegIrqFlags] &^= value
	case RegVersion, RegRxNbBytes, RegFifoRxCurrentAddr, RegPktSnrValue, RegPktRssiValue:
		// read-only
	case RegOpMode:
		c.regs[RegOpMode] = value
		return c.enterMode(value)
	default:
		c.regs[addr] = value
	}
	return nil
}

func (c *SimChip) enterMode(value byte) *simFrame {
	if value&ModeLongRange == 0 {
		return nil
	}
	switch value & modeMask {
	case ModeTx:
		n := int(c.regs[RegPayloadLength])
		payload := make([]byte, n)
		base := c.regs[RegFifoTxBaseAddr]
		for i := range payload {
			payload[i] = c.fifo[base+byte(i)]
		}
		c.transmitted = append(c.transmitted, append([]byte(nil), payload...))
		if !c.dropTxDone {
			c.raiseLocked(IrqTxDone)
			c.regs[RegOpMode] = ModeLongRange | ModeStdby
		}
		return &simFrame{payload: payload, frf: c.frfLocked()}
	case ModeRxSingle, ModeRxCont:
		if c.rxTimeouts > 0 {
			c.rxTimeouts--
			c.raiseLocked(IrqRxTimeout)
			c.regs[RegOpMode] = ModeLongRange | ModeStdby
			return nil
		}
		if len(c.inbox) > 0 {
			f := c.inbox[0]
			c.inbox = c.inbox[1:]
			c.deliverLocked(f)
		}
	}
	return nil
}

func (c *SimChip) hear(f simFrame, rssi int, snr float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || f.frf != c.frfLocked() {
		return
	}
	h := heardFrame{simFrame: f, rssi: rssi, snr: snr}
	if c.listeningLocked() {
		c.deliverLocked(h)
		return
	}
	if len(c.inbox) == simInboxDepth {
		c.inbox = c.inbox[1:]
	}
	c.inbox = append(c.inbox, h)
}

func (c *SimChip) listeningLocked() bool {
	mode := c.regs[RegOpMode]
	if mode&ModeLongRange == 0 {
		return false
	}
	m := mode & modeMask
	return m == ModeRxSingle || m == ModeRxCont
}

func (c *SimChip) deliverLocked(f heardFrame) {
	base := c.regs[RegFifoRxBaseAddr]
	for i, b := range f.payload {
		c.fifo[base+byte(i)] = b
	}
	c.regs[RegFifoRxCurrentAddr] = base
	c.regs[RegRxNbBytes] = byte(len(f.payload))
	c.regs[RegPktSnrValue] = byte(int8(f.snr * 4))
	offset := 157
	if c.frfLocked() < lfPortFrf {
		offset = 164
	}
	c.regs[RegPktRssiValue] = byte(f.rssi + offset)

	flags := IrqRxDone | IrqValidHeader
	if f.corrupt && c.regs[RegModemConfig2]&crcOn != 0 {
		flags |= IrqPayloadCrcError
	}
	if c.regs[RegOpMode]&modeMask == ModeRxSingle {
		c.regs[RegOpMode] = ModeLongRange | ModeStdby
	}
	c.raiseLocked(flags)
}

func (c *SimChip) raiseLocked(flags byte) {
	c.regs[RegIrqFlags] |= flags
	select {
	case c.irq <- struct{}{}:
	default:
	}
}

func (c *SimChip) frfLocked() uint32 {
	return uint32(c.regs[RegFrfMsb])<<16 | uint32(c.regs[RegFrfMid])<<8 | uint32(c.regs[RegFrfLsb])
}
