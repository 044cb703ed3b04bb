package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"LoraFall/internal/model"
	"LoraFall/internal/parser"
	"LoraFall/internal/util"
)

const (
	serialReadTimeout = 100 * time.Millisecond
	sampleBuffer      = 64
)

// SerialImu reads newline-delimited samples from a serial-connected IMU.
// A background reader parses lines into a bounded buffer; Read drains it
// without blocking. When the buffer is full new samples are dropped.
type SerialImu struct {
	port    io.ReadCloser
	parser  parser.Parser
	logger  *zap.Logger
	samples chan model.AccelSample
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	malformed atomic.Uint64
	dropped   atomic.Uint64
}

var _ ImuSource = (*SerialImu)(nil)

// OpenSerialImu opens the port described by cfg and starts reading from it.
func OpenSerialImu(cfg model.SerialConfig, p parser.Parser, logger *zap.Logger) (*SerialImu, error) {
	port, err := util.OpenSerial(cfg)
	if err != nil {
		return nil, fmt.Errorf("open imu serial failed: %w", err)
	}
	// a bounded read lets the reader notice Close
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set imu read timeout: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("imu serial opened", zap.String("device", cfg.Device), zap.Int("baud", cfg.Baud))
	return NewSerialImu(port, p, logger), nil
}

// NewSerialImu starts reading sample lines from port.
func NewSerialImu(port io.ReadCloser, p parser.Parser, logger *zap.Logger) *SerialImu {
	if logger == nil {
		logger = zap.NewNop()
	}
	imu := &SerialImu{
		port:    port,
		parser:  p,
		logger:  logger.With(zap.String("component", "imu")),
		samples: make(chan model.AccelSample, sampleBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go imu.readLoop()
	return imu
}

// Read implements ImuSource.
func (imu *SerialImu) Read() (model.AccelSample, bool) {
	select {
	case s := <-imu.samples:
		return s, true
	default:
		return model.AccelSample{}, false
	}
}

// Malformed returns the number of lines that failed to parse.
func (imu *SerialImu) Malformed() uint64 { return imu.malformed.Load() }

// Dropped returns the number of samples discarded because nobody read them.
func (imu *SerialImu) Dropped() uint64 { return imu.dropped.Load() }

// Close stops the reader and closes the port.
func (imu *SerialImu) Close() error {
	var err error
	imu.once.Do(func() {
		close(imu.stop)
		err = imu.port.Close()
		<-imu.done
	})
	return err
}

func (imu *SerialImu) readLoop() {
	defer close(imu.done)
	reader := bufio.NewReader(imu.port)
	var partial strings.Builder
	for {
		select {
		case <-imu.stop:
			return
		default:
		}

		chunk, err := reader.ReadString('\n')
		partial.WriteString(chunk)
		if err != nil {
			// go.bug.st/serial returns (0, nil) on a read timeout, which
			// bufio reports as ErrNoProgress after enough empty reads.
			if errors.Is(err, io.ErrNoProgress) {
				continue
			}
			select {
			case <-imu.stop:
			default:
				imu.logger.Warn("imu serial read stopped", zap.Error(err))
			}
			return
		}

		line := strings.TrimSpace(partial.String())
		partial.Reset()
		if line == "" {
			continue
		}
		s, err := imu.parser.DecodeSample(line)
		if err != nil {
			imu.malformed.Add(1)
			imu.logger.Debug("skip malformed imu line", zap.String("line", line), zap.Error(err))
			continue
		}
		select {
		case imu.samples <- s:
		default:
			imu.dropped.Add(1)
		}
	}
}
