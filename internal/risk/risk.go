// Package risk combines a lifestyle baseline with scan vitals into a bounded
// stroke-risk score. Every function here is pure; malformed or non-finite
// input maps to a fixed neutral sub-score instead of propagating.
package risk

import "math"

// Score ceilings.
const (
	MaxLifestyle = 60
	MaxRealtime  = 40
	MinTotal     = 1
	MaxTotal     = 100
	NeutralTotal = 50
)

// Level thresholds on the total score.
const (
	LowRiskFloor      = 70
	ModerateRiskFloor = 40
)

type Level string

const (
	LevelLow      Level = "Low Risk"
	LevelModerate Level = "Moderate Risk"
	LevelHigh     Level = "High Risk"
)

// TriageColor is the dashboard colour for a daily check.
type TriageColor string

const (
	TriageGreen  TriageColor = "GREEN"
	TriageYellow TriageColor = "YELLOW"
	TriageRed    TriageColor = "RED"
)

// Baseline holds the self-reported lifestyle factors.
type Baseline struct {
	BloodPressure  string `json:"blood_pressure"`  // "systolic/diastolic"
	DiabetesStatus string `json:"diabetes_status"` // no | unsure | yes
	SmokingStatus  string `json:"smoking_status"`  // never | former | active
	FamilyHistory  string `json:"family_history"`  // no | unsure | yes
	ActivityLevel  string `json:"activity_level"`  // 5+ | 3-4 | 1-2 | 0
}

// Metrics are the vitals produced by a scan.
type Metrics struct {
	PulseRate        float64   `json:"pulse_rate"`
	SDNNMs           float64   `json:"sdnn_ms"`
	PulseRateHistory []float64 `json:"pulse_rate_history"`
	IsExercising     bool      `json:"is_exercising"`
}

type Breakdown struct {
	PulseRate     int `json:"pulse_rate"`
	PRV           int `json:"prv"`
	Stability     int `json:"stability"`
	BloodPressure int `json:"blood_pressure"`
	Smoking       int `json:"smoking"`
	Diabetes      int `json:"diabetes"`
	FamilyHistory int `json:"family_history"`
	Activity      int `json:"activity"`
}

type Score struct {
	Total     int       `json:"total"`
	Lifestyle int       `json:"lifestyle"`
	Realtime  int       `json:"realtime"`
	Breakdown Breakdown `json:"breakdown"`
	Level     Level     `json:"risk_level"`
}

// Calculate scores a baseline and a set of metrics. 100 is best.
func Calculate(b Baseline, m Metrics) Score {
	bd := Breakdown{
		BloodPressure: ScoreBloodPressure(b.BloodPressure),
		Smoking:       ScoreSmoking(b.SmokingStatus),
		Diabetes:      ScoreDiabetes(b.DiabetesStatus),
		FamilyHistory: ScoreFamilyHistory(b.FamilyHistory),
		Activity:      ScoreActivity(b.ActivityLevel),
		PulseRate:     ScorePulseRate(m.PulseRate, m.IsExercising),
		PRV:           ScorePRV(m.SDNNMs),
		Stability:     ScoreStability(m.PulseRateHistory),
	}

	lifestyle := min(MaxLifestyle, bd.BloodPressure+bd.Smoking+bd.Diabetes+bd.FamilyHistory+bd.Activity)
	realtime := min(MaxRealtime, bd.PulseRate+bd.PRV+bd.Stability)
	total := clampTotal(float64(lifestyle + realtime))

	return Score{
		Total:     total,
		Lifestyle: lifestyle,
		Realtime:  realtime,
		Breakdown: bd,
		Level:     LevelFor(total),
	}
}

// LevelFor maps a total to its risk level.
func LevelFor(total int) Level {
	switch {
	case total >= LowRiskFloor:
		return LevelLow
	case total >= ModerateRiskFloor:
		return LevelModerate
	default:
		return LevelHigh
	}
}

// Triage maps a risk level to a dashboard colour. Unknown levels are RED.
func Triage(level Level) TriageColor {
	switch level {
	case LevelLow:
		return TriageGreen
	case LevelModerate:
		return TriageYellow
	default:
		return TriageRed
	}
}

func clampTotal(raw float64) int {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return NeutralTotal
	}
	return int(math.Max(MinTotal, math.Min(MaxTotal, math.Round(raw))))
}
