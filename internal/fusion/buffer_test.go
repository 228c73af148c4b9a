package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(n int64) int64 { return n * int64(time.Millisecond) }

func pcAt(tsNanos int64) PointCloudSample {
	return PointCloudSample{TimestampNanos: tsNanos}
}

func TestSampleBuffer_PushEvictsOldest(t *testing.T) {
	b := NewSampleBuffer[PointCloudSample](4, time.Hour)

	for i := int64(0); i < 6; i++ {
		b.Push(pcAt(ms(i * 10)))
	}

	require.Equal(t, 4, b.Len())

	// Oldest two (0ms, 10ms) were evicted; 20ms is now the oldest.
	got, ok := b.Nearest(ms(0))
	require.True(t, ok)
	assert.Equal(t, ms(20), got.TimestampNanos)

	got, ok = b.Nearest(ms(100))
	require.True(t, ok)
	assert.Equal(t, ms(50), got.TimestampNanos)
}

func TestSampleBuffer_DefaultCapacity(t *testing.T) {
	b := NewSampleBuffer[ImageSample](0, time.Hour)
	for i := int64(0); i < 20; i++ {
		b.Push(ImageSample{TimestampNanos: ms(i)})
	}
	assert.Equal(t, DefaultBufferCapacity, b.Len())
}

func TestSampleBuffer_NearestEmpty(t *testing.T) {
	b := NewSampleBuffer[DetectionSample](8, time.Hour)
	_, ok := b.Nearest(ms(100))
	assert.False(t, ok)
}

func TestSampleBuffer_NearestPicksClosest(t *testing.T) {
	b := NewSampleBuffer[PointCloudSample](8, time.Hour)
	b.Push(pcAt(ms(100)))
	b.Push(pcAt(ms(200)))
	b.Push(pcAt(ms(300)))

	tests := []struct {
		name string
		ref  int64
		want int64
	}{
		{"exact match", ms(200), ms(200)},
		{"just below midpoint", ms(149), ms(100)},
		{"just above midpoint", ms(151), ms(200)},
		{"before all samples", ms(50), ms(100)},
		{"after all samples", ms(400), ms(300)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := b.Nearest(tt.ref)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.TimestampNanos)
		})
	}
}

func TestSampleBuffer_StalenessExcludes(t *testing.T) {
	b := NewSampleBuffer[PointCloudSample](8, 150*time.Millisecond)
	b.Push(pcAt(ms(1000)))

	// Age 150ms is exactly at the threshold and still eligible.
	got, ok := b.Nearest(ms(1150))
	require.True(t, ok)
	assert.Equal(t, ms(1000), got.TimestampNanos)

	// One nanosecond older and the sample is stale.
	_, ok = b.Nearest(ms(1150) + 1)
	assert.False(t, ok)
}

func TestSampleBuffer_StalenessPrefersFresh(t *testing.T) {
	b := NewSampleBuffer[PointCloudSample](8, 100*time.Millisecond)
	b.Push(pcAt(ms(0)))
	b.Push(pcAt(ms(450)))

	// 0ms is nominally closer to 200ms than 450ms is, but it is stale;
	// the fresh sample from the "future" wins.
	got, ok := b.Nearest(ms(200))
	require.True(t, ok)
	assert.Equal(t, ms(450), got.TimestampNanos)
}

func TestSampleBuffer_OutOfOrderFallback(t *testing.T) {
	b := NewSampleBuffer[PointCloudSample](8, time.Hour)
	b.Push(pcAt(ms(100)))
	b.Push(pcAt(ms(300)))
	b.Push(pcAt(ms(200))) // late arrival, buffer no longer sorted

	got, ok := b.Nearest(ms(210))
	require.True(t, ok)
	assert.Equal(t, ms(200), got.TimestampNanos, "linear scan must still find the closest sample")

	got, ok = b.Nearest(ms(290))
	require.True(t, ok)
	assert.Equal(t, ms(300), got.TimestampNanos)
}

func TestSampleBuffer_DoubleFusionGuard(t *testing.T) {
	b := NewSampleBuffer[PointCloudSample](8, time.Hour)
	b.Push(pcAt(ms(100)))

	got, ok := b.Nearest(ms(100))
	require.True(t, ok)
	b.MarkConsumed(got.TimestampNanos)

	// Nothing else is buffered, so the consumed one may fuse again.
	got, ok = b.Nearest(ms(110))
	require.True(t, ok)
	assert.Equal(t, ms(100), got.TimestampNanos)

	// Once another sample arrives it takes over, even when the consumed
	// sample is nominally closer to the reference.
	b.Push(pcAt(ms(160)))
	got, ok = b.Nearest(ms(110))
	require.True(t, ok)
	assert.Equal(t, ms(160), got.TimestampNanos)
}

func TestSampleBuffer_ConsumedSkipPicksClosestRemaining(t *testing.T) {
	b := NewSampleBuffer[PointCloudSample](8, time.Hour)
	b.Push(pcAt(ms(1000)))

	got, ok := b.Nearest(ms(1000))
	require.True(t, ok)
	b.MarkConsumed(got.TimestampNanos)

	// Skipping the consumed sample must fall to the closest remaining
	// sample, not the newest one.
	b.Push(pcAt(ms(1030)))
	b.Push(pcAt(ms(1300)))

	got, ok = b.Nearest(ms(1005))
	require.True(t, ok)
	assert.Equal(t, ms(1030), got.TimestampNanos)
}

func TestSampleBuffer_ConcurrentPushNearest(t *testing.T) {
	b := NewSampleBuffer[ImageSample](8, time.Hour)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(0); i < 1000; i++ {
			b.Push(ImageSample{TimestampNanos: ms(i)})
		}
	}()
	for i := int64(0); i < 1000; i++ {
		b.Nearest(ms(i))
	}
	<-done
	assert.Equal(t, 8, b.Len())
}
