package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LoraFall/internal/model"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(model.DefaultFallConfig())
	require.NoError(t, err)
	return e
}

func feedN(e *Engine, n int, s model.AccelSample) []model.FallEvent {
	var events []model.FallEvent
	for i := 0; i < n; i++ {
		if ev, ok := e.Feed(s); ok {
			events = append(events, ev)
		}
	}
	return events
}

func TestFeed_ImpactThenStillness(t *testing.T) {
	e := newEngine(t)

	assert.Empty(t, feedN(e, 10, model.AccelSample{X: 50}))
	assert.Empty(t, feedN(e, 1, model.AccelSample{X: 300, Y: -20, Z: 10}))
	assert.Equal(t, TrackIdle, e.State())

	events := feedN(e, 70, model.AccelSample{X: 10, Y: -10, Z: 5})
	require.Len(t, events, 1)
	assert.Equal(t, model.FallEvent{EpochMs: 110, PeakCentiG: 300, IdleMs: 700}, events[0])
	assert.Equal(t, WaitPeak, e.State())

	assert.Empty(t, feedN(e, 200, model.AccelSample{X: 10}), "stillness alone must not retrigger")
}

func TestFeed_EmitsOnSeventiethIdleSample(t *testing.T) {
	e := newEngine(t)
	feedN(e, 1, model.AccelSample{Z: -250})

	assert.Empty(t, feedN(e, 69, model.AccelSample{}))
	assert.Len(t, feedN(e, 1, model.AccelSample{}), 1)
}

func TestFeed_BelowPeakNeverTriggers(t *testing.T) {
	e := newEngine(t)
	events := feedN(e, 1000, model.AccelSample{X: 219, Y: -219, Z: 100})
	assert.Empty(t, events)
	assert.Equal(t, WaitPeak, e.State())
}

func TestFeed_PeakTrackedDuringIdle(t *testing.T) {
	e := newEngine(t)
	feedN(e, 1, model.AccelSample{X: 250})
	feedN(e, 1, model.AccelSample{Y: -400})

	events := feedN(e, 70, model.AccelSample{})
	require.Len(t, events, 1)
	assert.Equal(t, int16(400), events[0].PeakCentiG)
	assert.Equal(t, uint32(20), events[0].EpochMs, "epoch follows the highest peak")
}

func TestFeed_MotionResetsIdleAccumulator(t *testing.T) {
	e := newEngine(t)
	feedN(e, 1, model.AccelSample{X: 300})
	assert.Empty(t, feedN(e, 50, model.AccelSample{}))
	assert.Empty(t, feedN(e, 1, model.AccelSample{X: 100}))
	assert.Empty(t, feedN(e, 69, model.AccelSample{}))
	assert.Len(t, feedN(e, 1, model.AccelSample{}), 1)
}

func TestFeed_StallRecovery(t *testing.T) {
	e := newEngine(t)
	feedN(e, 1, model.AccelSample{X: 300}) // peak at 10 ms

	// Moderate motion keeps the idle accumulator at zero.
	feedN(e, 80, model.AccelSample{X: 100}) // now = 810 ms, 800 ms after the peak
	assert.Equal(t, TrackIdle, e.State())

	feedN(e, 1, model.AccelSample{X: 100})
	assert.Equal(t, WaitPeak, e.State())

	feedN(e, 1, model.AccelSample{X: 500})
	events := feedN(e, 70, model.AccelSample{})
	require.Len(t, events, 1)
	assert.Equal(t, int16(500), events[0].PeakCentiG)
	assert.Equal(t, uint32(830), events[0].EpochMs)
}

func TestFeed_StallGraceIsConfigurable(t *testing.T) {
	cfg := model.DefaultFallConfig()
	cfg.StallGraceMs = 500
	e, err := New(cfg)
	require.NoError(t, err)

	feedN(e, 1, model.AccelSample{X: 300})
	feedN(e, 120, model.AccelSample{X: 100}) // 1200 ms after the peak
	assert.Equal(t, TrackIdle, e.State())
	feedN(e, 1, model.AccelSample{X: 100})
	assert.Equal(t, WaitPeak, e.State())
}

func TestFeed_FractionalPeriod(t *testing.T) {
	cfg := model.DefaultFallConfig()
	cfg.SampleRateHz = 3
	e, err := New(cfg)
	require.NoError(t, err)

	feedN(e, 3, model.AccelSample{})
	assert.Equal(t, uint32(1000), e.ElapsedMs())
	feedN(e, 300, model.AccelSample{})
	assert.Equal(t, uint32(101000), e.ElapsedMs())
}

func TestFeed_IdleSaturates(t *testing.T) {
	cfg := model.DefaultFallConfig()
	cfg.SampleRateHz = 3
	cfg.IdleConfirmMs = math.MaxUint16
	e, err := New(cfg)
	require.NoError(t, err)

	feedN(e, 1, model.AccelSample{X: 300})
	// steps run 333, 334, 333, ... so 196 idle samples reach 65333 ms
	assert.Empty(t, feedN(e, 196, model.AccelSample{}))
	events := feedN(e, 1, model.AccelSample{})
	require.Len(t, events, 1)
	assert.Equal(t, uint16(math.MaxUint16), events[0].IdleMs)
	assert.Equal(t, uint32(333), events[0].EpochMs)
}

func TestFeed_EpochWraps(t *testing.T) {
	e := newEngine(t)
	e.nowMs = math.MaxUint32 - 25

	feedN(e, 1, model.AccelSample{X: 300})
	events := feedN(e, 70, model.AccelSample{})
	require.Len(t, events, 1)
	assert.Equal(t, uint32(math.MaxUint32-15), events[0].EpochMs)
	assert.Less(t, e.ElapsedMs(), uint32(1000), "virtual time wrapped")
}

func TestFeed_StallRecoveryAcrossWrap(t *testing.T) {
	e := newEngine(t)
	e.nowMs = math.MaxUint32 - 25

	feedN(e, 1, model.AccelSample{X: 300}) // peak 16 ms before the wrap
	feedN(e, 80, model.AccelSample{X: 100})
	assert.Equal(t, TrackIdle, e.State())
	assert.Less(t, e.ElapsedMs(), uint32(1000))

	feedN(e, 1, model.AccelSample{X: 100})
	assert.Equal(t, WaitPeak, e.State())
}

func TestNew_InvalidConfig(t *testing.T) {
	cases := map[string]func(*model.FallConfig){
		"zero sample rate":     func(c *model.FallConfig) { c.SampleRateHz = 0 },
		"sample rate too high": func(c *model.FallConfig) { c.SampleRateHz = 2000 },
		"idle above peak":      func(c *model.FallConfig) { c.IdleThresholdCentiG = 300 },
		"zero peak":            func(c *model.FallConfig) { c.PeakThresholdCentiG = 0; c.IdleThresholdCentiG = 0 },
		"zero confirm window":  func(c *model.FallConfig) { c.IdleConfirmMs = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := model.DefaultFallConfig()
			mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestReset_KeepsStateOnError(t *testing.T) {
	e := newEngine(t)
	feedN(e, 5, model.AccelSample{})
	require.Error(t, e.Reset(model.FallConfig{}))
	assert.Equal(t, uint32(50), e.ElapsedMs())

	require.NoError(t, e.Reset(model.DefaultFallConfig()))
	assert.Equal(t, uint32(0), e.ElapsedMs())
}

func TestMagnitude(t *testing.T) {
	assert.Equal(t, int16(32767), Magnitude(model.AccelSample{X: -32768}))
	assert.Equal(t, int16(7), Magnitude(model.AccelSample{X: 1, Y: -7, Z: 3}))
	assert.Equal(t, int16(0), Magnitude(model.AccelSample{}))
}
