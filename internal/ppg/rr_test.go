package ppg

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRR_Bounds(t *testing.T) {
	cases := []struct {
		rr   time.Duration
		want bool
	}{
		{330 * time.Millisecond, false},
		{331 * time.Millisecond, true},
		{833 * time.Millisecond, true},
		{1499 * time.Millisecond, true},
		{1500 * time.Millisecond, false},
		{2 * time.Second, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidRR(tc.rr), tc.rr.String())
	}
}

func TestFilterRR(t *testing.T) {
	valid, rejected := FilterRR([]float64{800, 200, 900, 1600, math.NaN(), 1000})

	assert.Equal(t, []float64{800, 900, 1000}, valid)
	assert.Equal(t, 3, rejected)
}

func TestIntervals(t *testing.T) {
	base := time.Unix(0, 0)
	beats := []time.Time{base, base.Add(800 * time.Millisecond), base.Add(1700 * time.Millisecond)}

	assert.Equal(t, []float64{800, 900}, Intervals(beats))
	assert.Nil(t, Intervals(beats[:1]))
}

func TestSDNN_IsPopulationStdDev(t *testing.T) {
	rr := []float64{800, 900, 1000, 700}
	// mean 850, squared deviations 2500+2500+22500+22500
	assert.InDelta(t, math.Sqrt(50000.0/4), SDNN(rr), 1e-9)

	assert.Zero(t, SDNN(nil))
	assert.Zero(t, SDNN([]float64{900}))
	assert.Zero(t, SDNN([]float64{900, 900, 900}))
}

func TestSDNN_NeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := rng.Intn(20)
		rr := make([]float64, n)
		for j := range rr {
			rr[j] = 331 + rng.Float64()*1168
		}
		v := SDNN(rr)
		require.False(t, math.IsNaN(v))
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestBPM(t *testing.T) {
	assert.InDelta(t, 72.0, BPM(60000.0/72), 1e-9)
	assert.Zero(t, BPM(0))
	assert.Zero(t, BPM(-5))
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(Median(nil)))
}
