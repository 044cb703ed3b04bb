package lora

import (
	"fmt"
	"io"
	"sync"
	"time"

	"LoraFall/internal/model"
	"LoraFall/internal/util"
)

// Bridge command bytes. Every command is answered before the next is sent:
//
//	'W' addr|0x80 n data[n]  ->  'K'
//	'R' addr      n          ->  data[n]
//	'X'                      ->  'K'   (pulse NRESET low for 10 ms)
const (
	bridgeWrite byte = 'W'
	bridgeRead  byte = 'R'
	bridgeReset byte = 'X'
	bridgeAck   byte = 'K'

	// DefaultBridgeTimeout bounds one bridge transaction.
	DefaultBridgeTimeout = 100 * time.Millisecond
)

// BridgePort is the part of serial.Port used by the bridge.
type BridgePort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// SerialBridge is a RegisterBus for an SX1276 whose SPI, reset and DIO
// lines are driven by a small MCU on the other end of a serial link.
// The bridge does not forward DIO0, so the driver polls.
type SerialBridge struct {
	mu   sync.Mutex
	port BridgePort
}

var _ RegisterBus = (*SerialBridge)(nil)

// OpenSerialBridge opens the bridge port described by cfg.
func OpenSerialBridge(cfg model.SerialConfig) (*SerialBridge, error) {
	p, err := util.OpenSerial(cfg)
	if err != nil {
		return nil, err
	}
	b, err := NewSerialBridge(p, DefaultBridgeTimeout)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return b, nil
}

// NewSerialBridge wraps an open port. timeout bounds each response read.
func NewSerialBridge(port BridgePort, timeout time.Duration) (*SerialBridge, error) {
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("bridge: set read timeout: %w", err)
	}
	return &SerialBridge{port: port}, nil
}

// ReadRegister implements RegisterBus.
func (b *SerialBridge) ReadRegister(addr byte) (byte, error) {
	var v [1]byte
	if err := b.ReadBurst(addr, v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}

// WriteRegister implements RegisterBus.
func (b *SerialBridge) WriteRegister(addr, value byte) error {
	return b.WriteBurst(addr, []byte{value})
}

// ReadBurst implements RegisterBus.
func (b *SerialBridge) ReadBurst(addr byte, buf []byte) error {
	for len(buf) > 0 {
		n := min(len(buf), MaxPayload)
		if err := b.transact([]byte{bridgeRead, addr &^ writeFlag, byte(n)}, buf[:n]); err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// WriteBurst implements RegisterBus.
func (b *SerialBridge) WriteBurst(addr byte, data []byte) error {
	for len(data) > 0 {
		n := min(len(data), MaxPayload)
		cmd := make([]byte, 0, 3+n)
		cmd = append(cmd, bridgeWrite, addr|writeFlag, byte(n))
		cmd = append(cmd, data[:n]...)
		if err := b.expectAck(cmd); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Reset implements RegisterBus.
func (b *SerialBridge) Reset() error {
	return b.expectAck([]byte{bridgeReset})
}

// IRQ implements RegisterBus; the bridge has no interrupt line.
func (b *SerialBridge) IRQ() <-chan struct{} { return nil }

// Close implements RegisterBus.
func (b *SerialBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

func (b *SerialBridge) expectAck(cmd []byte) error {
	var ack [1]byte
	if err := b.transact(cmd, ack[:]); err != nil {
		return err
	}
	if ack[0] != bridgeAck {
		return fmt.Errorf("%w: command %q answered 0x%02X", ErrBridgeProtocol, cmd[0], ack[0])
	}
	return nil
}

// transact sends cmd and reads exactly len(resp) bytes back.
func (b *SerialBridge) transact(cmd, resp []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return fmt.Errorf("%w: port closed", ErrBridgeProtocol)
	}
	// drop anything left over from an aborted exchange
	if err := b.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("bridge: flush: %w", err)
	}
	if _, err := b.port.Write(cmd); err != nil {
		return fmt.Errorf("bridge: write: %w", err)
	}
	for got := 0; got < len(resp); {
		n, err := b.port.Read(resp[got:])
		if err != nil {
			return fmt.Errorf("bridge: read: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: response timeout after %d of %d bytes", ErrBridgeProtocol, got, len(resp))
		}
		got += n
	}
	return nil
}
