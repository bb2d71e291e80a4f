package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorePulseRate(t *testing.T) {
	cases := []struct {
		bpm        float64
		exercising bool
		want       int
	}{
		{65, false, 15},
		{55, false, 15},
		{75, false, 15},
		{80, false, 11},
		{90, false, 6},
		{120, false, 0},
		{45, false, 8},
		{120, true, 10},
		{math.NaN(), false, NeutralPulseRate},
		{math.Inf(1), true, NeutralPulseRate},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ScorePulseRate(tc.bpm, tc.exercising), "%v/%v", tc.bpm, tc.exercising)
	}
}

func TestScorePRV(t *testing.T) {
	cases := map[float64]int{
		90: 20,
		80: 20,
		60: 16,
		40: 11,
		25: 6,
		10: 0,
		0:  NeutralPRV,
		-3: NeutralPRV,
	}
	for in, want := range cases {
		assert.Equal(t, want, ScorePRV(in), "%v", in)
	}
	assert.Equal(t, NeutralPRV, ScorePRV(math.NaN()))
}

func TestScoreStability(t *testing.T) {
	assert.Equal(t, NeutralStability, ScoreStability(nil))
	assert.Equal(t, NeutralStability, ScoreStability([]float64{70, 71, 72, 73}))
	assert.Equal(t, NeutralStability, ScoreStability([]float64{70, 71, math.NaN(), 72, math.Inf(1), 73}),
		"non-finite values do not count towards the minimum")

	assert.Equal(t, 5, ScoreStability([]float64{70, 71, 72, 71, 70}))
	assert.Equal(t, 4, ScoreStability([]float64{66, 74, 66, 74, 70}))
	assert.Equal(t, 2, ScoreStability([]float64{62, 78, 62, 78, 70}))
	assert.Equal(t, 0, ScoreStability([]float64{50, 90, 50, 90, 70}))
}
