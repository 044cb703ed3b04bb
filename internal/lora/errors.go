package lora

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized = errors.New("radio not initialized")
	ErrBadVersion     = errors.New("radio version register invalid")
	ErrInvalidConfig  = errors.New("invalid radio config")
	ErrPayloadSize    = errors.New("invalid payload size (valid range: 1-255)")
	ErrTimeout        = errors.New("radio operation timed out")
	ErrCRC            = errors.New("received payload failed CRC")
	ErrBridgeProtocol = errors.New("serial bridge protocol error")
)

// ErrRxTimeout is the modem's own receive timeout. It matches ErrTimeout
// under errors.Is.
var ErrRxTimeout = fmt.Errorf("%w: modem rx window expired", ErrTimeout)

// IsTransient reports whether err is an expected outcome of listening on a
// quiet or noisy channel rather than a device fault.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCRC)
}
