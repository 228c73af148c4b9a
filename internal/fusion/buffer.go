package fusion

import (
	"sort"
	"sync"
	"time"
)

// Timestamped is implemented by every sample type held in a SampleBuffer.
type Timestamped interface {
	// Time returns the capture timestamp in unix nanoseconds.
	Time() int64
}

// Time returns the capture timestamp of the point cloud.
func (s PointCloudSample) Time() int64 { return s.TimestampNanos }

// Time returns the capture timestamp of the detection set.
func (s DetectionSample) Time() int64 { return s.TimestampNanos }

// Time returns the capture timestamp of the image.
func (s ImageSample) Time() int64 { return s.TimestampNanos }

// DefaultBufferCapacity is the per-stream slot count when none is configured.
const DefaultBufferCapacity = 8

// SampleBuffer holds the most recent samples of one sensor stream, keyed by
// capture timestamp. It is a fixed-size arena with a write cursor: Push is
// O(1) and evicts the oldest slot when full, Nearest is a binary search while
// the stream stays monotonic and degrades to a linear scan once an
// out-of-order arrival has been observed.
//
// One producer goroutine calls Push; the dispatch loop calls Nearest and
// MarkConsumed. Both sides hold a short critical section and never block.
type SampleBuffer[T Timestamped] struct {
	mu        sync.Mutex
	slots     []T
	capacity  int
	head      int // next write position
	size      int
	staleness time.Duration

	// ordered is true while pushed timestamps are non-decreasing. It goes
	// false on the first out-of-order arrival and stays false; Nearest then
	// scans linearly instead of binary-searching.
	ordered    bool
	lastPushed int64

	// lastConsumed is the timestamp most recently handed to a successful
	// fusion. Nearest skips that sample while another eligible one exists,
	// so one sample is never fused twice unless it is the only candidate.
	lastConsumed int64
}

// NewSampleBuffer creates a buffer with the given slot capacity and staleness
// threshold. Capacity ≤ 0 falls back to DefaultBufferCapacity.
func NewSampleBuffer[T Timestamped](capacity int, staleness time.Duration) *SampleBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &SampleBuffer[T]{
		slots:     make([]T, capacity),
		capacity:  capacity,
		staleness: staleness,
		ordered:   true,
	}
}

// Push inserts a sample, evicting the oldest when the buffer is full.
func (b *SampleBuffer[T]) Push(sample T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := sample.Time()
	if b.size > 0 && ts < b.lastPushed {
		b.ordered = false
	}
	b.lastPushed = ts

	b.slots[b.head] = sample
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Len returns the number of buffered samples.
func (b *SampleBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Nearest returns the eligible sample whose timestamp is closest to refNanos.
// A sample is eligible when its age relative to refNanos does not exceed the
// staleness threshold. When the closest sample was already consumed by an
// earlier fusion, the closest remaining eligible sample is returned instead;
// the consumed one is handed out again only when nothing else is eligible.
// ok is false when no eligible sample remains.
func (b *SampleBuffer[T]) Nearest(refNanos int64) (sample T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}

	var idx int
	if b.ordered {
		idx = b.nearestOrdered(refNanos)
	} else {
		idx = b.nearestScan(refNanos)
	}
	if idx < 0 {
		return zero, false
	}

	best := b.at(idx)
	if best.Time() == b.lastConsumed {
		if next, found := b.nearestEligibleExcluding(refNanos, best.Time()); found {
			return next, true
		}
	}
	return best, true
}

// MarkConsumed records that the sample with the given timestamp was fused.
func (b *SampleBuffer[T]) MarkConsumed(tsNanos int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastConsumed = tsNanos
}

// at maps a logical index (0 = oldest) to the backing slot.
func (b *SampleBuffer[T]) at(i int) T {
	return b.slots[(b.head-b.size+i+b.capacity)%b.capacity]
}

// eligible reports whether the sample at logical index i is within the
// staleness threshold of refNanos.
func (b *SampleBuffer[T]) eligible(i int, refNanos int64) bool {
	age := refNanos - b.at(i).Time()
	return age <= b.staleness.Nanoseconds()
}

// nearestOrdered binary-searches the insertion-ordered timestamps for the
// sample closest to refNanos. Returns -1 when every candidate is stale.
func (b *SampleBuffer[T]) nearestOrdered(refNanos int64) int {
	// First logical index with timestamp >= refNanos.
	i := sort.Search(b.size, func(i int) bool {
		return b.at(i).Time() >= refNanos
	})

	best := -1
	var bestDiff int64
	consider := func(j int) {
		if j < 0 || j >= b.size || !b.eligible(j, refNanos) {
			return
		}
		diff := b.at(j).Time() - refNanos
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = j, diff
		}
	}
	consider(i - 1)
	consider(i)
	return best
}

// nearestScan is the out-of-order fallback: linear scan of all slots.
func (b *SampleBuffer[T]) nearestScan(refNanos int64) int {
	best := -1
	var bestDiff int64
	for i := 0; i < b.size; i++ {
		if !b.eligible(i, refNanos) {
			continue
		}
		diff := b.at(i).Time() - refNanos
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

// nearestEligibleExcluding returns the eligible sample closest to refNanos
// whose timestamp differs from excludeNanos, if any.
func (b *SampleBuffer[T]) nearestEligibleExcluding(refNanos, excludeNanos int64) (T, bool) {
	var zero T
	best := -1
	var bestDiff int64
	for i := 0; i < b.size; i++ {
		if b.at(i).Time() == excludeNanos || !b.eligible(i, refNanos) {
			continue
		}
		diff := b.at(i).Time() - refNanos
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best == -1 {
		return zero, false
	}
	return b.at(best), true
}
