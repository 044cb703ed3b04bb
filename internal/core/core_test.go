package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"LoraFall/internal/device"
	"LoraFall/internal/lora"
	"LoraFall/internal/model"
	"LoraFall/internal/packet"
)

type rxResult struct {
	frame []byte
	err   error
}

// fakeRadio is a scripted Transceiver.
type fakeRadio struct {
	mu      sync.Mutex
	initErr error
	sendErr error
	inits   int
	sent    [][]byte
	closed  bool
	rx      chan rxResult
}

func newFakeRadio() *fakeRadio { return &fakeRadio{rx: make(chan rxResult, 16)} }

func (f *fakeRadio) Init(lora.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeRadio) Send(p []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

func (f *fakeRadio) Receive(buf []byte, timeout time.Duration) (int, error) {
	select {
	case r := <-f.rx:
		if r.err != nil {
			return 0, r.err
		}
		return copy(buf, r.frame), nil
	case <-time.After(timeout):
		return 0, lora.ErrTimeout
	}
}

func (f *fakeRadio) State() lora.State           { return lora.Idle }
func (f *fakeRadio) PacketStatus() (int, float64) { return -88, 4.5 }

func (f *fakeRadio) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRadio) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

// recordingSink collects delivered alerts.
type recordingSink struct {
	mu     sync.Mutex
	alerts []model.Alert
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return s.err
}

func (s *recordingSink) got() []model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Alert(nil), s.alerts...)
}

func frame(t *testing.T, ev model.FallEvent) []byte {
	t.Helper()
	buf := make([]byte, packet.FrameSize)
	n, err := packet.EncodeAlert(ev, buf)
	require.NoError(t, err)
	return buf[:n]
}

func scenario(t *testing.T, name string) *device.ScenarioImu {
	t.Helper()
	imu, err := device.NewScenarioImu(name, false, 1)
	require.NoError(t, err)
	return imu
}

func TestNode_RejectsInvalidFallConfig(t *testing.T) {
	cfg := model.DefaultFallConfig()
	cfg.SampleRateHz = 0
	_, err := NewNode(NodeOptions{Imu: scenario(t, "quiet"), Radio: newFakeRadio(), Fall: cfg})
	assert.Error(t, err)

	_, err = NewNode(NodeOptions{Fall: model.DefaultFallConfig()})
	assert.Error(t, err)
}

func TestNode_StartFailsWhenRadioInitFails(t *testing.T) {
	radio := newFakeRadio()
	radio.initErr = lora.ErrBadVersion
	node, err := NewNode(NodeOptions{
		ID:    "node-1",
		Imu:   scenario(t, "fall"),
		Radio: radio,
		Fall:  model.DefaultFallConfig(),
	})
	require.NoError(t, err)

	err = node.Start(context.Background())
	assert.ErrorIs(t, err, lora.ErrBadVersion)
	assert.Zero(t, node.Stats().Samples)
	node.Stop()
	node.Stop()
}

func TestNode_TransmitsDetectedFall(t *testing.T) {
	radio := newFakeRadio()
	node, err := NewNode(NodeOptions{
		ID:           "node-1",
		Imu:          scenario(t, "fall"),
		Radio:        radio,
		Fall:         model.DefaultFallConfig(),
		SamplePeriod: time.Millisecond,
		PopTimeout:   5 * time.Millisecond,
		IdleBackoff:  time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))
	assert.Error(t, node.Start(context.Background()))

	require.Eventually(t, func() bool { return len(radio.sentFrames()) == 1 }, 5*time.Second, 5*time.Millisecond)
	node.Stop()

	ev, err := packet.DecodeAlert(radio.sentFrames()[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(700), ev.IdleMs)
	assert.GreaterOrEqual(t, ev.PeakCentiG, int16(280))

	stats := node.Stats()
	assert.Equal(t, uint64(1), stats.Events)
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Zero(t, stats.SendFailures)
	assert.True(t, radio.closed)
}

func TestNode_SendFailureDropsEvent(t *testing.T) {
	radio := newFakeRadio()
	radio.sendErr = lora.ErrTimeout
	node, err := NewNode(NodeOptions{
		ID:           "node-1",
		Imu:          scenario(t, "fall"),
		Radio:        radio,
		Fall:         model.DefaultFallConfig(),
		SamplePeriod: time.Millisecond,
		PopTimeout:   5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, node.Start(context.Background()))

	require.Eventually(t, func() bool { return node.Stats().SendFailures == 1 }, 5*time.Second, 5*time.Millisecond)
	node.Stop()
	assert.Zero(t, node.Stats().Sent)
	assert.Zero(t, node.Queue().Len())
}

func TestNode_StopsWithContext(t *testing.T) {
	node, err := NewNode(NodeOptions{
		Imu:   scenario(t, "quiet"),
		Radio: newFakeRadio(),
		Fall:  model.DefaultFallConfig(),
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, node.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() { node.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loops did not exit on context cancel")
	}
	node.Stop()
}

func TestReceiver_DecodesAndDelivers(t *testing.T) {
	radio := newFakeRadio()
	sink := &recordingSink{}
	failing := &recordingSink{err: errors.New("down")}
	recv, err := NewReceiver(ReceiverOptions{
		ID:        "rx-1",
		Radio:     radio,
		Sinks:     []Sink{sink, failing},
		RxTimeout: 10 * time.Millisecond,
		RxBackoff: time.Millisecond,
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.NoError(t, recv.Start(context.Background()))
	defer recv.Stop()

	ev := model.FallEvent{EpochMs: 4242, PeakCentiG: 310, IdleMs: 700}
	good := frame(t, ev)
	bad := append([]byte(nil), good...)
	bad[4] ^= 0x10

	radio.rx <- rxResult{err: lora.ErrCRC}
	radio.rx <- rxResult{frame: bad}
	radio.rx <- rxResult{err: errors.New("spi fault")}
	radio.rx <- rxResult{frame: good}

	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, 2*time.Second, 5*time.Millisecond)
	a := sink.got()[0]
	assert.Equal(t, ev, a.Event)
	assert.Equal(t, "rx-1", a.Receiver)
	assert.Equal(t, -88, a.RSSI)
	assert.Equal(t, 4.5, a.SNR)
	assert.Len(t, a.ID, 36)
	assert.False(t, a.ReceivedAt.IsZero())

	require.Eventually(t, func() bool { return recv.Stats().SinkErrors == 1 }, 2*time.Second, 5*time.Millisecond)
	stats := recv.Stats()
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Equal(t, uint64(1), stats.Malformed)
	assert.Equal(t, uint64(1), stats.CRCErrors)
	assert.Equal(t, uint64(1), stats.RadioErrors)
	assert.Zero(t, stats.Delivered)
}

func TestReceiver_StartFailsWhenRadioInitFails(t *testing.T) {
	radio := newFakeRadio()
	radio.initErr = lora.ErrBadVersion
	recv, err := NewReceiver(ReceiverOptions{ID: "rx-1", Radio: radio})
	require.NoError(t, err)
	assert.ErrorIs(t, recv.Start(context.Background()), lora.ErrBadVersion)
	recv.Stop()

	_, err = NewReceiver(ReceiverOptions{})
	assert.Error(t, err)
}

// TestEndToEnd_SimulatedLink runs a node and a receiver over register-level
// simulated radios sharing one ether.
func TestEndToEnd_SimulatedLink(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ether := lora.NewEther()
	ether.SetSignal(-101, -2.5)

	sink := &recordingSink{}
	recv, err := NewReceiver(ReceiverOptions{
		ID:        "rx-1",
		Radio:       lora.NewRadio(lora.NewSimChip(ether), nil, logger),
		RadioConfig: lora.DefaultConfig(),
		Sinks:       []Sink{sink, NewLogSink(logger)},
		RxTimeout:   20 * time.Millisecond,
		Logger:      logger,
	})
	require.NoError(t, err)
	node, err := NewNode(NodeOptions{
		ID:           "node-1",
		Imu:          scenario(t, "fall"),
		Radio:        lora.NewRadio(lora.NewSimChip(ether), nil, logger),
		RadioConfig:  lora.DefaultConfig(),
		Fall:         model.DefaultFallConfig(),
		SamplePeriod: time.Millisecond,
		Logger:       logger,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, recv.Start(ctx))
	require.NoError(t, node.Start(ctx))
	defer recv.Stop()
	defer node.Stop()

	require.Eventually(t, func() bool { return len(sink.got()) == 1 }, 5*time.Second, 5*time.Millisecond)
	a := sink.got()[0]
	assert.Equal(t, uint16(700), a.Event.IdleMs)
	assert.Equal(t, -2.5, a.SNR)
	// below 0 dB SNR the whole-dB part of the SNR is added to the RSSI
	assert.Equal(t, -103, a.RSSI)
	assert.Equal(t, uint64(1), node.Stats().Sent)
}
