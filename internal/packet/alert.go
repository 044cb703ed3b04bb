// Package packet implements the binary alert frame sent over the radio link.
//
// Frame layout (11 bytes, little endian):
//
//	Type(1)=0xFA | Version(1)=0x01 | EpochMs(4) | PeakCentiG(2, signed) | IdleMs(2) | CRC8(1)
//
// The CRC covers bytes 0..9.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"LoraFall/internal/model"
)

const (
	// TypeFallAlert identifies a fall alert frame.
	TypeFallAlert byte = 0xFA
	// Version is the only frame version understood by this codec.
	Version byte = 0x01
	// FrameSize is the encoded length of an alert frame.
	FrameSize = 11

	crcOffset = FrameSize - 1
)

var (
	ErrBufferTooSmall = errors.New("buffer too small for alert frame")
	ErrShortFrame     = errors.New("frame shorter than alert frame")
	ErrFrameType      = errors.New("unexpected frame type")
	ErrFrameVersion   = errors.New("unsupported frame version")
	ErrChecksum       = errors.New("frame checksum mismatch")
)

// EncodeAlert writes e into buf and returns the number of bytes written.
// It writes nothing and returns 0 when buf cannot hold a frame.
func EncodeAlert(e model.FallEvent, buf []byte) (int, error) {
	if len(buf) < FrameSize {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrBufferTooSmall, len(buf), FrameSize)
	}
	buf[0] = TypeFallAlert
	buf[1] = Version
	binary.LittleEndian.PutUint32(buf[2:6], e.EpochMs)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(e.PeakCentiG))
	binary.LittleEndian.PutUint16(buf[8:10], e.IdleMs)
	buf[crcOffset] = CRC8(buf[:crcOffset])
	return FrameSize, nil
}

// DecodeAlert parses an alert frame from the start of buf. Trailing bytes
// are ignored.
func DecodeAlert(buf []byte) (model.FallEvent, error) {
	if len(buf) < FrameSize {
		return model.FallEvent{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(buf))
	}
	if buf[0] != TypeFallAlert {
		return model.FallEvent{}, fmt.Errorf("%w: 0x%02X", ErrFrameType, buf[0])
	}
	if buf[1] != Version {
		return model.FallEvent{}, fmt.Errorf("%w: 0x%02X", ErrFrameVersion, buf[1])
	}
	if want := CRC8(buf[:crcOffset]); buf[crcOffset] != want {
		return model.FallEvent{}, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrChecksum, buf[crcOffset], want)
	}
	return model.FallEvent{
		EpochMs:    binary.LittleEndian.Uint32(buf[2:6]),
		PeakCentiG: int16(binary.LittleEndian.Uint16(buf[6:8])),
		IdleMs:     binary.LittleEndian.Uint16(buf[8:10]),
	}, nil
}
