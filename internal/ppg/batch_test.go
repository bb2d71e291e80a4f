package ppg

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineSeries(hz, fps float64, seconds float64) []TimedValue {
	base := time.Unix(1000, 0)
	n := int(fps * seconds)
	out := make([]TimedValue, n)
	for i := range out {
		ts := base.Add(time.Duration(float64(i) / fps * float64(time.Second)))
		out[i] = TimedValue{T: ts, V: math.Sin(2 * math.Pi * hz * float64(i) / fps)}
	}
	return out
}

func TestSmooth(t *testing.T) {
	out := Smooth([]float64{0, 3, 6, 9}, 1)
	assert.Equal(t, []float64{1.5, 3, 6, 7.5}, out)

	assert.Equal(t, []float64{1, 2}, Smooth([]float64{1, 2}, 0))
}

func TestFindPeaks_MinDistance(t *testing.T) {
	data := []float64{0, 5, 0, 5, 0, 0, 0, 5, 0}
	assert.Equal(t, []int{1, 7}, FindPeaks(data, 3))
	assert.Equal(t, []int{1, 3, 7}, FindPeaks(data, 1))
	assert.Nil(t, FindPeaks([]float64{1, 2}, 1))
}

func TestAnalyzeBatch_SyntheticPulse(t *testing.T) {
	res, err := AnalyzeBatch(sineSeries(1.2, 30, 10))
	require.NoError(t, err)

	assert.InDelta(t, 72, res.HeartRate, 1)
	assert.Zero(t, res.Rejected)
	assert.GreaterOrEqual(t, res.Peaks, 10)
	assert.Equal(t, 100.0, res.Confidence)
	assert.InDelta(t, 30, res.FPS, 0.5)
	for _, rr := range res.RR {
		assert.InDelta(t, 833.3, rr, 2)
	}
}

func TestAnalyzeBatch_TooShort(t *testing.T) {
	_, err := AnalyzeBatch(sineSeries(1.2, 30, 2))
	assert.ErrorIs(t, err, ErrInsufficientSignal)
}

func TestAnalyzeBatch_FlatSignal(t *testing.T) {
	series := sineSeries(1.2, 30, 10)
	for i := range series {
		series[i].V = 3
	}
	_, err := AnalyzeBatch(series)
	assert.ErrorIs(t, err, ErrTooFewPeaks)
}

func TestAnalyzeBatch_NonIncreasingTimestamps(t *testing.T) {
	series := sineSeries(1.2, 30, 10)
	for i := range series {
		series[i].T = series[0].T
	}
	_, err := AnalyzeBatch(series)
	assert.ErrorIs(t, err, ErrInsufficientSignal)
}
