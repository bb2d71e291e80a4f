package risk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func healthyBaseline() Baseline {
	return Baseline{
		BloodPressure:  "118/76",
		DiabetesStatus: "no",
		SmokingStatus:  "never",
		FamilyHistory:  "no",
		ActivityLevel:  "5+",
	}
}

func TestCalculate_HealthyExample(t *testing.T) {
	score := Calculate(healthyBaseline(), Metrics{
		PulseRate:        65,
		SDNNMs:           60,
		PulseRateHistory: []float64{64, 65, 66, 65, 64, 66},
	})

	assert.Equal(t, 60, score.Lifestyle)
	assert.Equal(t, 36, score.Realtime)
	assert.Equal(t, 96, score.Total)
	assert.Equal(t, LevelLow, score.Level)
	assert.Equal(t, Breakdown{
		PulseRate: 15, PRV: 16, Stability: 5,
		BloodPressure: 25, Smoking: 15, Diabetes: 10, FamilyHistory: 5, Activity: 5,
	}, score.Breakdown)
}

func TestCalculate_EmptyInputIsNeutral(t *testing.T) {
	score := Calculate(Baseline{}, Metrics{})

	assert.Equal(t, NeutralBloodPressure+NeutralSmoking+NeutralDiabetes+NeutralFamilyHistory+NeutralActivity, score.Lifestyle)
	// pulse 0 falls in the low band, SDNN 0 is "no data"
	assert.Equal(t, 8+NeutralPRV+NeutralStability, score.Realtime)
	assert.Equal(t, LevelModerate, score.Level)
}

func TestCalculate_WorstCaseStaysInRange(t *testing.T) {
	score := Calculate(Baseline{
		BloodPressure:  "180/110",
		DiabetesStatus: "yes",
		SmokingStatus:  "active",
		FamilyHistory:  "yes",
		ActivityLevel:  "0",
	}, Metrics{PulseRate: 130, SDNNMs: 5, PulseRateHistory: []float64{90, 130, 100, 140, 95}})

	assert.Equal(t, 1, score.Lifestyle)
	assert.Equal(t, 0, score.Realtime)
	assert.Equal(t, MinTotal, score.Total)
	assert.Equal(t, LevelHigh, score.Level)
}

func TestCalculate_TotalAlwaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	specials := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1, 0, 1e308}
	bps := []string{"", "120/", "/80", " / ", "abc", "120/80/60", "999/80", "110/70", "135 / 85", "150/95"}
	words := []string{"", "never", "former", "active", "no", "unsure", "yes", "5+", "3-4", "1-2", "0", "???"}

	pick := func() float64 {
		if rng.Intn(3) == 0 {
			return specials[rng.Intn(len(specials))]
		}
		return rng.Float64() * 200
	}

	for i := 0; i < 2000; i++ {
		b := Baseline{
			BloodPressure:  bps[rng.Intn(len(bps))],
			DiabetesStatus: words[rng.Intn(len(words))],
			SmokingStatus:  words[rng.Intn(len(words))],
			FamilyHistory:  words[rng.Intn(len(words))],
			ActivityLevel:  words[rng.Intn(len(words))],
		}
		history := make([]float64, rng.Intn(12))
		for j := range history {
			history[j] = pick()
		}
		m := Metrics{PulseRate: pick(), SDNNMs: pick(), PulseRateHistory: history, IsExercising: rng.Intn(4) == 0}

		score := Calculate(b, m)
		assert.GreaterOrEqual(t, score.Total, MinTotal)
		assert.LessOrEqual(t, score.Total, MaxTotal)
		assert.LessOrEqual(t, score.Lifestyle, MaxLifestyle)
		assert.LessOrEqual(t, score.Realtime, MaxRealtime)
		assert.Equal(t, LevelFor(score.Total), score.Level)
	}
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, LevelLow, LevelFor(70))
	assert.Equal(t, LevelModerate, LevelFor(69))
	assert.Equal(t, LevelModerate, LevelFor(40))
	assert.Equal(t, LevelHigh, LevelFor(39))
}

func TestTriage(t *testing.T) {
	assert.Equal(t, TriageGreen, Triage(LevelLow))
	assert.Equal(t, TriageYellow, Triage(LevelModerate))
	assert.Equal(t, TriageRed, Triage(LevelHigh))
	assert.Equal(t, TriageRed, Triage(""))
}

func TestClampTotal_NonFinite(t *testing.T) {
	assert.Equal(t, NeutralTotal, clampTotal(math.NaN()))
	assert.Equal(t, NeutralTotal, clampTotal(math.Inf(1)))
	assert.Equal(t, MinTotal, clampTotal(-20))
	assert.Equal(t, MaxTotal, clampTotal(140))
}
