package device

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"LoraFall/internal/model"
)

// Segment is a run of Count samples whose X axis sits around Level with
// up to Jitter centi-g of noise on every axis.
type Segment struct {
	Count  int
	Level  int16
	Jitter int16
}

// Scenario is a named, scripted motion profile.
type Scenario struct {
	Name     string
	Segments []Segment
}

// Len returns the number of samples in one pass of the scenario.
func (s Scenario) Len() int {
	n := 0
	for _, seg := range s.Segments {
		n += seg.Count
	}
	return n
}

var (
	walking = func(n int) Segment { return Segment{Count: n, Level: 60, Jitter: 30} }
	impact  = func(n int) Segment { return Segment{Count: n, Level: 300, Jitter: 20} }
	still   = func(n int) Segment { return Segment{Count: n, Level: 5, Jitter: 5} }
)

var scenarios = map[string]Scenario{
	// walk, hit the floor, lie still for a second, get up
	"fall": {Name: "fall", Segments: []Segment{walking(150), impact(3), still(100), walking(50)}},
	// a hard knock that is followed by normal movement
	"stumble": {Name: "stumble", Segments: []Segment{walking(100), impact(2), walking(200)}},
	"walk":    {Name: "walk", Segments: []Segment{walking(200)}},
	"quiet":   {Name: "quiet", Segments: []Segment{still(200)}},
}

// LookupScenario returns the scenario registered under name.
func LookupScenario(name string) (Scenario, error) {
	s, ok := scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario %q (have %v)", name, ScenarioNames())
	}
	return s, nil
}

// ScenarioNames lists the registered scenarios in sorted order.
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ScenarioImu replays a Scenario one sample per Read. The noise is drawn
// from a seeded generator so a given seed always yields the same samples.
type ScenarioImu struct {
	mu       sync.Mutex
	scenario Scenario
	loop     bool
	rng      *rand.Rand
	seg      int
	pos      int
	closed   bool
}

var _ ImuSource = (*ScenarioImu)(nil)

// NewScenarioImu returns a source for the named scenario. With loop set the
// scenario restarts after its last sample; otherwise Read reports no data.
func NewScenarioImu(name string, loop bool, seed int64) (*ScenarioImu, error) {
	s, err := LookupScenario(name)
	if err != nil {
		return nil, err
	}
	return &ScenarioImu{scenario: s, loop: loop, rng: rand.New(rand.NewSource(seed))}, nil
}

// Read implements ImuSource.
func (imu *ScenarioImu) Read() (model.AccelSample, bool) {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	if imu.closed {
		return model.AccelSample{}, false
	}
	for imu.seg < len(imu.scenario.Segments) && imu.pos >= imu.scenario.Segments[imu.seg].Count {
		imu.seg++
		imu.pos = 0
	}
	if imu.seg == len(imu.scenario.Segments) {
		if !imu.loop || imu.scenario.Len() == 0 {
			return model.AccelSample{}, false
		}
		imu.seg, imu.pos = 0, 0
	}
	seg := imu.scenario.Segments[imu.seg]
	imu.pos++
	return model.AccelSample{
		X: seg.Level + imu.noise(seg.Jitter),
		Y: imu.noise(seg.Jitter),
		Z: imu.noise(seg.Jitter),
	}, true
}

// Close implements ImuSource.
func (imu *ScenarioImu) Close() error {
	imu.mu.Lock()
	defer imu.mu.Unlock()
	imu.closed = true
	return nil
}

func (imu *ScenarioImu) noise(jitter int16) int16 {
	if jitter <= 0 {
		return 0
	}
	return int16(imu.rng.Intn(2*int(jitter)+1)) - jitter
}
