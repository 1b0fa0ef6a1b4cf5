package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// wraps the stdlib time.Ticker struct, allows for mocking in tests
type StatsTicker interface {
	C() <-chan time.Time
	Stop()
}

type statsTicker struct {
	*time.Ticker
}

func (s *statsTicker) C() <-chan time.Time { return s.Ticker.C }

func NewStatsTicker(dur time.Duration) StatsTicker {
	return &statsTicker{time.NewTicker(dur)}
}

// Defines the calls we make to the stdlib time package. Allows for overriding in tests.
type StatsTime interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) StatsTicker
}

type defaultStatsTime struct{}

func (defaultStatsTime) Now() time.Time                        { return time.Now() }
func (defaultStatsTime) Since(t time.Time) time.Duration       { return time.Since(t) }
func (defaultStatsTime) NewTicker(d time.Duration) StatsTicker { return NewStatsTicker(d) }

var stdlibStatsTime = defaultStatsTime{}

// Returns a StatsTime instance backed by the stdlib 'time' package
func DefaultStatsTime() StatsTime { return stdlibStatsTime }

// ManualTime is a StatsTime for tests: the clock only moves on Advance/Set and
// every ticker it creates fires only when Tick is called.
type ManualTime struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

func NewManualTime(now time.Time) *ManualTime {
	return &ManualTime{now: now}
}

func (m *ManualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualTime) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *ManualTime) NewTicker(time.Duration) StatsTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

func (m *ManualTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *ManualTime) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Tick fires every live ticker once, dropping the tick if the previous one is unconsumed.
func (m *ManualTime) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tickers {
		if t.stopped.Load() {
			continue
		}
		select {
		case t.ch <- m.now:
		default:
		}
	}
}
