package device

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"LoraFall/internal/parser"
	"LoraFall/internal/timeutil"
)

// Simulator writes a scenario as IMU sample lines, standing in for the
// accelerometer board on the other end of a serial link.
type Simulator struct {
	Out    io.Writer
	Parser parser.Parser
	Imu    ImuSource
	// Period between lines; zero writes as fast as possible.
	Period time.Duration
	Clock  timeutil.Clock
	Logger *zap.Logger
}

// Run streams samples until the source is exhausted or ctx is cancelled.
// It returns the number of lines written.
func (s *Simulator) Run(ctx context.Context) (int, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := timeutil.OrReal(s.Clock)

	var tick <-chan time.Time
	if s.Period > 0 {
		t := clock.NewTicker(s.Period)
		defer t.Stop()
		tick = t.C()
	}

	written := 0
	for {
		if ctx.Err() != nil {
			return written, nil
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return written, nil
			case <-tick:
			}
		}

		sample, ok := s.Imu.Read()
		if !ok {
			logger.Info("simulation finished", zap.Int("lines", written))
			return written, nil
		}
		line, err := s.Parser.EncodeSample(sample)
		if err != nil {
			return written, fmt.Errorf("encode sample: %w", err)
		}
		if _, err := io.WriteString(s.Out, line+"\n"); err != nil {
			return written, fmt.Errorf("simulate write: %w", err)
		}
		written++
		logger.Debug("simulate write", zap.String("line", line))
	}
}
