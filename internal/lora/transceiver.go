// Package lora drives an SX1276-class LoRa transceiver at register level.
//
// The driver talks to the chip through a RegisterBus. Two buses are
// provided: SerialBridge, for a chip wired to a USB serial bridge MCU, and
// SimChip, a register-accurate simulation joined to other simulated chips
// through an Ether.
package lora

import (
	"fmt"
	"time"
)

// State is the driver's view of the radio session.
type State int32

const (
	Uninitialized State = iota
	Idle
	Transmitting
	Receiving
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Transmitting:
		return "transmitting"
	case Receiving:
		return "receiving"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transceiver is a half-duplex packet radio.
type Transceiver interface {
	// Init resets and configures the radio, leaving it Idle.
	Init(cfg Config) error

	// Send transmits payload, waiting at most timeout for completion.
	Send(payload []byte, timeout time.Duration) error

	// Receive listens for one packet for at most timeout and copies up to
	// len(buf) bytes of it into buf.
	Receive(buf []byte, timeout time.Duration) (int, error)

	// State returns the current session state.
	State() State

	// PacketStatus returns RSSI (dBm) and SNR (dB) of the last received packet.
	PacketStatus() (rssi int, snr float64)

	// Close releases the underlying bus.
	Close() error
}

// RegisterBus is register-level access to the chip plus its reset and DIO0
// interrupt lines.
type RegisterBus interface {
	ReadRegister(addr byte) (byte, error)
	WriteRegister(addr, value byte) error
	ReadBurst(addr byte, buf []byte) error
	WriteBurst(addr byte, data []byte) error

	// Reset pulses the chip's reset line.
	Reset() error

	// IRQ delivers DIO0 rising edges. A nil channel means the bus has no
	// interrupt line and the driver polls RegIrqFlags instead.
	IRQ() <-chan struct{}

	Close() error
}
