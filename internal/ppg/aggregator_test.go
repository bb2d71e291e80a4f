package ppg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beatsEvery(start time.Time, gap time.Duration, n int) []QueueItem {
	items := make([]QueueItem, n)
	for i := range items {
		items[i] = QueueItem{Beat: BeatEvent{Timestamp: start.Add(time.Duration(i) * gap)}}
	}
	return items
}

func TestAggregator_NeedsFiveBeats(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	a.Ingest(beatsEvery(time.Unix(0, 0), time.Second, 4))

	_, ok := a.Window()
	assert.False(t, ok)
	assert.Zero(t, a.Samples())
}

func TestAggregator_WindowsUseOnlyNewIntervals(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	start := time.Unix(0, 0)

	a.Ingest(beatsEvery(start, time.Second, 6))
	w, ok := a.Window()
	require.True(t, ok)
	assert.Equal(t, 1, w.Index)
	assert.Equal(t, 5, w.Intervals)
	assert.Equal(t, 60.0, w.PulseRate)
	assert.Zero(t, w.PRV)
	assert.Equal(t, 5, a.Samples())

	_, ok = a.Window()
	assert.False(t, ok, "no new beats, no window")

	a.Ingest(beatsEvery(start.Add(6*time.Second), time.Second, 3))
	w, ok = a.Window()
	require.True(t, ok)
	assert.Equal(t, 2, w.Index)
	assert.Equal(t, 3, w.Intervals)
	assert.Equal(t, 8, a.Samples())
}

func TestAggregator_DropsInvalidIntervals(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	start := time.Unix(0, 0)
	items := beatsEvery(start, 800*time.Millisecond, 4)
	// a 2 s gap is outside the physiological range
	items = append(items, beatsEvery(start.Add(2400*time.Millisecond+2*time.Second), 800*time.Millisecond, 4)...)
	a.Ingest(items)

	w, ok := a.Window()
	require.True(t, ok)
	assert.Equal(t, 1, w.Rejected)
	assert.Equal(t, 6, w.Intervals)
	assert.Equal(t, 75.0, w.PulseRate)
}

func TestAggregator_ResetMarkerDropsHistory(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	start := time.Unix(0, 0)

	items := beatsEvery(start, time.Second, 4)
	items = append(items, QueueItem{Reset: true})
	items = append(items, beatsEvery(start.Add(10*time.Second), time.Second, 3)...)
	a.Ingest(items)

	_, ok := a.Window()
	assert.False(t, ok, "beats before the reset must not count")
}

func TestAggregator_IgnoresOutOfOrderBeats(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	start := time.Unix(0, 0)

	items := beatsEvery(start, time.Second, 5)
	items = append(items, QueueItem{Beat: BeatEvent{Timestamp: start.Add(2 * time.Second)}})
	a.Ingest(items)

	w, ok := a.Window()
	require.True(t, ok)
	assert.Equal(t, 4, w.Intervals)
}

func TestAggregator_FinalizeInsufficientSignal(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	a.Ingest(beatsEvery(time.Unix(0, 0), 800*time.Millisecond, 6))
	_, ok := a.Window()
	require.True(t, ok)
	require.Equal(t, 5, a.Samples())

	res, err := a.Finalize(ModeFace)
	assert.ErrorIs(t, err, ErrInsufficientSignal)
	assert.Empty(t, res.PulseRateSamples)
}

func TestAggregator_Finalize(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	start := time.Unix(0, 0)

	a.Ingest(beatsEvery(start, time.Second, 6))
	_, ok := a.Window()
	require.True(t, ok)
	a.Ingest(beatsEvery(start.Add(6*time.Second), time.Second, 6))
	_, ok = a.Window()
	require.True(t, ok)

	res, err := a.Finalize(ModeFace)
	require.NoError(t, err)
	assert.Equal(t, ModeFace, res.Mode)
	assert.Len(t, res.PulseRateSamples, 11)
	assert.Equal(t, 60.0, res.PulseRate)
	assert.Equal(t, 60.0, res.MedianPulseRate)
	assert.Zero(t, res.PRV)
	assert.Equal(t, 100.0, res.Confidence)
	assert.Equal(t, 2, res.Windows)

	a.Reset()
	assert.Zero(t, a.Samples())
}

func TestAggregator_MedianResistsOutlierWindow(t *testing.T) {
	a := NewAggregator(DefaultAggregatorConfig())
	start := time.Unix(0, 0)

	a.Ingest(beatsEvery(start, time.Second, 11))
	_, ok := a.Window()
	require.True(t, ok)
	// 500 ms beats continue from the last processed one
	a.Ingest(beatsEvery(start.Add(10500*time.Millisecond), 500*time.Millisecond, 3))
	_, ok = a.Window()
	require.True(t, ok)

	res, err := a.Finalize(ModeFace)
	require.NoError(t, err)
	assert.Len(t, res.PulseRateSamples, 13)
	assert.Equal(t, 60.0, res.MedianPulseRate)
	assert.Greater(t, res.PulseRate, res.MedianPulseRate)
}

func TestBeatQueue_DropsWhenFull(t *testing.T) {
	q := NewBeatQueue(2)
	assert.True(t, q.PushBeat(time.Unix(1, 0)))
	assert.True(t, q.PushReset())
	assert.False(t, q.PushBeat(time.Unix(2, 0)))
	assert.EqualValues(t, 1, q.Dropped())

	items := q.Drain()
	require.Len(t, items, 2)
	assert.False(t, items[0].Reset)
	assert.True(t, items[1].Reset)
	assert.Empty(t, q.Drain())

	q.Clear()
	assert.Zero(t, q.Dropped())
}
