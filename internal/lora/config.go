package lora

import (
	"fmt"
)

// Config is the modem configuration applied by Init.
type Config struct {
	FrequencyHz     uint32
	SpreadingFactor int
	BandwidthHz     int
	CodingRate      int // 5..8 for 4/5..4/8
	TxPowerDbm      int // PA_BOOST output, clamped to 2..17
	CRC             bool
	SyncWord        byte
	PreambleLength  uint16
}

// DefaultConfig returns the link settings used by both nodes.
func DefaultConfig() Config {
	return Config{
		FrequencyHz:     915000000,
		SpreadingFactor: 7,
		BandwidthHz:     125000,
		CodingRate:      5,
		TxPowerDbm:      15,
		CRC:             true,
		SyncWord:        0x12,
		PreambleLength:  8,
	}
}

// bandwidths maps signal bandwidth in Hz to the RegModemConfig1 BW field.
var bandwidths = map[int]byte{
	7800:   0,
	10400:  1,
	15600:  2,
	20800:  3,
	31250:  4,
	41700:  5,
	62500:  6,
	125000: 7,
	250000: 8,
	500000: 9,
}

// Validate checks the configuration against what the driver can program.
func (c Config) Validate() error {
	if c.FrequencyHz < 137000000 || c.FrequencyHz > 1020000000 {
		return fmt.Errorf("%w: frequency %d Hz outside 137-1020 MHz", ErrInvalidConfig, c.FrequencyHz)
	}
	// SF6 needs implicit header mode, which the alert link does not use.
	if c.SpreadingFactor < 7 || c.SpreadingFactor > 12 {
		return fmt.Errorf("%w: spreading factor %d outside 7-12", ErrInvalidConfig, c.SpreadingFactor)
	}
	if _, ok := bandwidths[c.BandwidthHz]; !ok {
		return fmt.Errorf("%w: unsupported bandwidth %d Hz", ErrInvalidConfig, c.BandwidthHz)
	}
	if c.CodingRate < 5 || c.CodingRate > 8 {
		return fmt.Errorf("%w: coding rate 4/%d", ErrInvalidConfig, c.CodingRate)
	}
	if c.PreambleLength < 6 {
		return fmt.Errorf("%w: preamble length %d below 6 symbols", ErrInvalidConfig, c.PreambleLength)
	}
	return nil
}

// frf returns the 24-bit carrier frequency word.
func (c Config) frf() uint32 {
	return uint32((uint64(c.FrequencyHz) << 19) / crystalHz)
}

func (c Config) modemConfig1() byte {
	// explicit header mode: bit 0 clear
	return bandwidths[c.BandwidthHz]<<4 | byte(c.CodingRate-4)<<1
}

func (c Config) modemConfig2() byte {
	v := byte(c.SpreadingFactor) << 4
	if c.CRC {
		v |= crcOn
	}
	return v
}

func (c Config) modemConfig3() byte {
	v := agcAutoOn
	// symbol time 2^SF/BW above 16 ms requires low data rate optimisation
	if (uint64(1)<<c.SpreadingFactor)*1000 > 16*uint64(c.BandwidthHz) {
		v |= lowDataOpt
	}
	return v
}

// paConfig returns RegPaConfig for PA_BOOST and the power actually applied.
func (c Config) paConfig() (byte, int) {
	p := c.TxPowerDbm
	if p < 2 {
		p = 2
	}
	if p > 17 {
		p = 17
	}
	return paBoost | byte(p-2), p
}

// lowFrequencyPort reports whether the carrier uses the chip's LF port,
// which shifts the RSSI offset.
func (c Config) lowFrequencyPort() bool {
	return c.FrequencyHz < 525000000
}
