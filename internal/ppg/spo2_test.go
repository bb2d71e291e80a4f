package ppg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func alternating(mean, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = mean + amp
		} else {
			out[i] = mean - amp
		}
	}
	return out
}

func TestEstimateSpO2_RatioOfRatios(t *testing.T) {
	red := alternating(100, 1, 100)
	blue := alternating(100, 5.0/3, 100)

	est := EstimateSpO2(red, blue)
	assert.InDelta(t, 0.6, est.Ratio, 1e-9)
	assert.Equal(t, 95.0, est.Value)
	assert.False(t, est.Substituted)
}

func TestEstimateSpO2_ClampsToBand(t *testing.T) {
	// R = 1 maps to 85, below the band
	est := EstimateSpO2(alternating(100, 2, 50), alternating(100, 2, 50))
	assert.Equal(t, SpO2Min, est.Value)
	assert.False(t, est.Substituted)
}

func TestEstimateSpO2_ImplausibleRatioSubstituted(t *testing.T) {
	cases := map[string]struct {
		red, blue []float64
	}{
		"flat blue":  {alternating(100, 1, 50), alternating(100, 0, 50)},
		"ratio high": {alternating(100, 10, 50), alternating(100, 1, 50)},
		"ratio low":  {alternating(100, 1, 50), alternating(100, 10, 50)},
		"empty":      {nil, nil},
	}
	for name, tc := range cases {
		est := EstimateSpO2(tc.red, tc.blue)
		assert.Equal(t, HealthySpO2, est.Value, name)
		assert.True(t, est.Substituted, name)
		assert.False(t, est.Ratio != est.Ratio, "%s: ratio must not be NaN", name)
	}
}
