// Package loadmeter implements a hierarchical moving-average busyness
// meter: a chain of averaging windows (1 second, 1 minute, 1 hour)
// where each level folds 60 completed samples of the level below it
// into one sample of its own. A LoadMeter has no knowledge of the
// Worker it instruments; a Worker calls AboutToWait/AboutToWork around
// its blocking poll call and reads Percentage from any goroutine.
package loadmeter

import (
	"sync/atomic"
	"time"
)

// Horizon selects one of the three chained averaging windows.
type Horizon int

const (
	OneSecond Horizon = iota
	OneMinute
	OneHour
)

// Granularity is the length of the base window level 0 accumulates
// before it hands a completed sample up the chain.
const Granularity = time.Second

const ringSize = 60

// average is the common capability of a node in the averaging chain: a
// value can be added (opening a new slot) or updated in place (a live,
// in-progress refinement of the most recent slot), and is published for
// lock-free reads via an atomic.
type average interface {
	addValue(v uint8) bool
	updateValue(v uint8)
	value() uint8
}

// average1 holds a single published value with no internal history; it
// realizes the level-0 (1-second) node, which has nothing to average
// over since it already is the smallest sampled unit.
type average1 struct {
	published atomic.Uint32
	dependant average
}

func (a *average1) addValue(v uint8) bool {
	a.published.Store(uint32(v))
	if a.dependant != nil {
		a.dependant.addValue(v)
	}
	return true
}

func (a *average1) updateValue(v uint8) {
	a.published.Store(uint32(v))
	if a.dependant != nil {
		a.dependant.updateValue(v)
	}
}

func (a *average1) value() uint8 { return uint8(a.published.Load()) }

// averageN is a fixed-size ring of the last N samples, publishing their
// mean. Only the owning Worker goroutine ever calls addValue/updateValue
// (single-writer), so the ring itself needs no synchronization; only the
// published value is read from other goroutines.
type averageN struct {
	ring      [ringSize]uint8
	i         int
	sum       uint32
	count     int
	published atomic.Uint32
	dependant average
}

func newAverageN(dependant average) *averageN {
	return &averageN{dependant: dependant}
}

func (a *averageN) addValue(v uint8) bool {
	if a.count == ringSize {
		a.sum -= uint32(a.ring[a.i])
	} else {
		a.count++
	}
	a.ring[a.i] = v
	a.sum += uint32(v)
	a.i = (a.i + 1) % ringSize

	avg := uint8(a.sum / uint32(a.count))
	a.published.Store(uint32(avg))

	wrapped := a.i == 0
	if a.dependant != nil {
		// The dependant's most recent slot tracks this level's current
		// cycle: the first sample of a cycle opens it, later samples
		// refine it, and the sample that completes the cycle leaves the
		// cycle's final mean in it.
		if a.i == 1 {
			a.dependant.addValue(avg)
		} else {
			a.dependant.updateValue(avg)
		}
	}
	return wrapped
}

func (a *averageN) updateValue(v uint8) {
	if a.count == 0 {
		a.addValue(v)
		return
	}
	prev := (a.i - 1 + ringSize) % ringSize
	a.sum -= uint32(a.ring[prev])
	a.ring[prev] = v
	a.sum += uint32(v)

	avg := uint8(a.sum / uint32(a.count))
	a.published.Store(uint32(avg))

	if a.dependant != nil {
		a.dependant.updateValue(avg)
	}
}

func (a *averageN) value() uint8 { return uint8(a.published.Load()) }

// LoadMeter tracks the fraction of wall-clock time a Worker spends
// blocked in its poll call versus doing work, at three horizons.
type LoadMeter struct {
	startTime time.Time
	waitStart time.Time
	waitAccum time.Duration

	load1s *average1
	load1m *averageN
	load1h *averageN
}

// New constructs a LoadMeter. Call Reset immediately before the owning
// Worker enters its event loop.
func New() *LoadMeter {
	hour := newAverageN(nil)
	minute := newAverageN(hour)
	second := &average1{dependant: minute}
	return &LoadMeter{load1s: second, load1m: minute, load1h: hour}
}

// Reset starts a fresh measurement window at now.
func (m *LoadMeter) Reset(now time.Time) {
	m.startTime = now
	m.waitStart = time.Time{}
	m.waitAccum = 0
}

// AboutToWait records that the worker is about to block in its poll
// call.
func (m *LoadMeter) AboutToWait(now time.Time) {
	m.waitStart = now
}

// AboutToWork records that the worker has returned from its poll call.
// When at least one full Granularity window has elapsed since the
// window started, the completed window's busy percentage is pushed into
// the averaging chain and a new window begins; otherwise the in-progress
// window's live estimate is published via an in-place update.
func (m *LoadMeter) AboutToWork(now time.Time) {
	if m.waitStart.IsZero() {
		return
	}
	waited := now.Sub(m.waitStart)
	if waited > 0 {
		m.waitAccum += waited
	}

	elapsed := now.Sub(m.startTime)
	if elapsed <= 0 {
		return
	}

	pct := percentage(elapsed, m.waitAccum)
	if elapsed >= Granularity {
		m.load1s.addValue(pct)
		m.startTime = now
		m.waitAccum = 0
	} else {
		m.load1s.updateValue(pct)
	}
}

func percentage(elapsed, waited time.Duration) uint8 {
	if elapsed <= 0 {
		return 0
	}
	busy := elapsed - waited
	if busy < 0 {
		busy = 0
	}
	pct := 100 * int64(busy) / int64(elapsed)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return uint8(pct)
}

// Percentage returns the most recently published value, 0-100, for the
// given horizon. Safe to call from any goroutine.
func (m *LoadMeter) Percentage(h Horizon) uint8 {
	switch h {
	case OneSecond:
		return m.load1s.value()
	case OneMinute:
		return m.load1m.value()
	case OneHour:
		return m.load1h.value()
	default:
		return 0
	}
}
