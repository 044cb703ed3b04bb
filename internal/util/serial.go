package util

import (
	"fmt"
	"strings"

	"go.bug.st/serial"

	"LoraFall/internal/model"
)

// NormalizeSerial validates cfg and applies defaults for any unset values.
func NormalizeSerial(cfg model.SerialConfig) (model.SerialConfig, error) {
	out := cfg
	if out.Baud <= 0 {
		out.Baud = 115200
	}
	if out.DataBits == 0 {
		out.DataBits = 8
	}
	if out.DataBits < 5 || out.DataBits > 8 {
		return out, fmt.Errorf("invalid data bits %d: must be between 5 and 8", out.DataBits)
	}
	if out.StopBits == 0 {
		out.StopBits = 1
	}
	if out.StopBits != 1 && out.StopBits != 2 {
		return out, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", out.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(out.Parity)) {
	case "", "N", "NONE":
		out.Parity = "N"
	case "E", "EVEN":
		out.Parity = "E"
	case "O", "ODD":
		out.Parity = "O"
	default:
		return out, fmt.Errorf("unsupported parity %q: expected N, E, or O", cfg.Parity)
	}
	return out, nil
}

// SerialMode converts cfg into the serial.Mode required by go.bug.st/serial.
func SerialMode(cfg model.SerialConfig) (*serial.Mode, error) {
	opts, err := NormalizeSerial(cfg)
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: opts.Baud,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// OpenSerial opens the port described by cfg.
func OpenSerial(cfg model.SerialConfig) (serial.Port, error) {
	mode, err := SerialMode(cfg)
	if err != nil {
		return nil, err
	}
	p, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", cfg.Device, err)
	}
	return p, nil
}
