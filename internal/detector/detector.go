// Package detector implements the peak-then-idle fall detection state machine.
//
// The engine runs on virtual time derived from the sample count and the
// configured sample rate, so identical input sequences always produce
// identical events regardless of wall-clock scheduling.
package detector

import (
	"errors"
	"fmt"

	"LoraFall/internal/model"
)

// ErrInvalidConfig is returned when the detector configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid detector config")

// State is the detector phase.
type State int

const (
	// WaitPeak looks for an impact above the peak threshold.
	WaitPeak State = iota
	// TrackIdle accumulates stillness after an impact.
	TrackIdle
)

func (s State) String() string {
	switch s {
	case WaitPeak:
		return "wait_peak"
	case TrackIdle:
		return "track_idle"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const maxIdleMs = 65535

// Engine is a fall detector. It is not safe for concurrent use; the
// sampling loop owns it.
type Engine struct {
	cfg model.FallConfig

	periodMs  uint32
	remainder uint32
	remAcc    uint32

	nowMs     uint32
	state     State
	peakEpoch uint32
	peak      int16
	idleMs    uint32
}

// New validates cfg and returns an engine at virtual time 0 in WaitPeak.
func New(cfg model.FallConfig) (*Engine, error) {
	e := &Engine{}
	if err := e.Reset(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset re-initialises the engine with cfg. On error the engine is unchanged.
func (e *Engine) Reset(cfg model.FallConfig) error {
	if err := validate(cfg); err != nil {
		return err
	}
	fs := uint32(cfg.SampleRateHz)
	*e = Engine{
		cfg:       cfg,
		periodMs:  1000 / fs,
		remainder: 1000 % fs,
		state:     WaitPeak,
	}
	return nil
}

func validate(cfg model.FallConfig) error {
	switch {
	case cfg.SampleRateHz == 0:
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	case cfg.SampleRateHz > 1000:
		return fmt.Errorf("%w: sample rate %d Hz is below the 1 ms tick", ErrInvalidConfig, cfg.SampleRateHz)
	case cfg.PeakThresholdCentiG <= 0:
		return fmt.Errorf("%w: peak threshold must be positive", ErrInvalidConfig)
	case cfg.IdleThresholdCentiG < 0 || cfg.IdleThresholdCentiG > cfg.PeakThresholdCentiG:
		return fmt.Errorf("%w: idle threshold %d outside [0, %d]", ErrInvalidConfig,
			cfg.IdleThresholdCentiG, cfg.PeakThresholdCentiG)
	case cfg.IdleConfirmMs == 0:
		return fmt.Errorf("%w: idle confirm window must be positive", ErrInvalidConfig)
	}
	return nil
}

// Feed consumes one sample and returns a fall event when the idle window
// after an impact has been confirmed.
func (e *Engine) Feed(s model.AccelSample) (model.FallEvent, bool) {
	step := e.advance()
	mag := Magnitude(s)

	switch e.state {
	case WaitPeak:
		if mag >= e.cfg.PeakThresholdCentiG {
			e.state = TrackIdle
			e.peakEpoch = e.nowMs
			e.peak = mag
			e.idleMs = 0
		}
		return model.FallEvent{}, false

	case TrackIdle:
		if mag > e.peak {
			e.peak = mag
			e.peakEpoch = e.nowMs
		}
		if mag <= e.cfg.IdleThresholdCentiG {
			e.idleMs += step
			if e.idleMs > maxIdleMs {
				e.idleMs = maxIdleMs
			}
		} else {
			e.idleMs = 0
		}

		if e.idleMs >= uint32(e.cfg.IdleConfirmMs) {
			ev := model.FallEvent{
				EpochMs:    e.peakEpoch,
				PeakCentiG: e.peak,
				IdleMs:     uint16(e.idleMs),
			}
			e.backToWait()
			return ev, true
		}

		// A peak followed by motion that never settles is abandoned once the
		// confirm window plus the grace period has passed without stillness.
		window := uint32(e.cfg.IdleConfirmMs) + uint32(e.cfg.StallGraceMs)
		if mag < e.cfg.PeakThresholdCentiG && e.idleMs == 0 && e.nowMs-e.peakEpoch > window {
			e.backToWait()
		}
	}
	return model.FallEvent{}, false
}

// advance moves virtual time forward by one sample period and returns the step.
func (e *Engine) advance() uint32 {
	step := e.periodMs
	e.remAcc += e.remainder
	if e.remAcc >= uint32(e.cfg.SampleRateHz) {
		e.remAcc -= uint32(e.cfg.SampleRateHz)
		step++
	}
	e.nowMs += step
	return step
}

func (e *Engine) backToWait() {
	e.state = WaitPeak
	e.peak = 0
	e.idleMs = 0
}

// State returns the current phase.
func (e *Engine) State() State { return e.state }

// ElapsedMs returns the virtual time in milliseconds.
func (e *Engine) ElapsedMs() uint32 { return e.nowMs }

// Config returns the active configuration.
func (e *Engine) Config() model.FallConfig { return e.cfg }

// Magnitude is the largest absolute axis value, saturated to the int16 range.
func Magnitude(s model.AccelSample) int16 {
	m := abs(s.X)
	if y := abs(s.Y); y > m {
		m = y
	}
	if z := abs(s.Z); z > m {
		m = z
	}
	if m > 32767 {
		m = 32767
	}
	return int16(m)
}

func abs(v int16) int32 {
	if v < 0 {
		return -int32(v)
	}
	return int32(v)
}
