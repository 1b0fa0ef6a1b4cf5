package phases

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/virtual-imaging-platform/GASW-Healing-Plugin/healing/domain"
)

// DefaultWindowSize bounds each sample history when no size is configured.
const DefaultWindowSize = 1000

// Median returns the median of samples without modifying them.
// Even-sized sets average their two middle values, an empty set yields 0.
func Median(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// SampleWindow keeps the most recent durations observed for one phase boundary.
// Once full, each append overwrites the oldest sample so memory and sort cost
// stay constant. Appends and snapshots may run concurrently.
type SampleWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
	total   int64
}

func NewSampleWindow(size int) *SampleWindow {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &SampleWindow{samples: make([]time.Duration, 0, size)}
}

// Add appends d, evicting the oldest sample when the window is full.
func (w *SampleWindow) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.total++
	if !w.full {
		w.samples = append(w.samples, d)
		if len(w.samples) == cap(w.samples) {
			w.full = true
		}
		return
	}
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
}

// Snapshot returns a copy of the samples currently held.
func (w *SampleWindow) Snapshot() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Duration, len(w.samples))
	copy(out, w.samples)
	return out
}

// Len is the number of samples currently held, at most the window size.
func (w *SampleWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Total is the number of samples ever added, including evicted ones.
func (w *SampleWindow) Total() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

func (w *SampleWindow) Median() time.Duration {
	return Median(w.Snapshot())
}

// Medians holds the current median duration of each phase boundary, indexed by domain.Boundary.
type Medians [domain.NumBoundaries]time.Duration

func NewMedians(setup, input, execution, upload time.Duration) Medians {
	return Medians{setup, input, execution, upload}
}

// Sum is the baseline completion time of a job that behaves like the median job.
func (m Medians) Sum() time.Duration {
	var sum time.Duration
	for _, d := range m {
		sum += d
	}
	return sum
}

// ChangedBy reports whether any median moved by at least percentage percent
// relative to prev, that is min/max < 1 - percentage/100 for some boundary.
// A boundary whose previous and current medians are both zero never counts as changed.
func (m Medians) ChangedBy(prev Medians, percentage int) bool {
	ratio := 1 - float64(percentage)/100.
	for i := range m {
		v1, v2 := float64(prev[i].Milliseconds()), float64(m[i].Milliseconds())
		hi, lo := v1, v2
		if v2 > v1 {
			hi, lo = v2, v1
		}
		if lo/hi < ratio {
			return true
		}
	}
	return false
}

func (m Medians) String() string {
	return fmt.Sprintf("setupMedian: %d ; inputMedian: %d ; executionMedian: %d ; outputMedian: %d",
		m[domain.Setup].Milliseconds(), m[domain.InputTransfer].Milliseconds(),
		m[domain.Execution].Milliseconds(), m[domain.Upload].Milliseconds())
}
