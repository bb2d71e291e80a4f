package risk

import "math"

// Neutral sub-scores for missing or degenerate vitals.
const (
	NeutralPulseRate = 8
	NeutralPRV       = 10
	NeutralStability = 3

	// MinStabilitySamples is the shortest history the stability score uses.
	MinStabilitySamples = 5
)

// ScorePulseRate awards up to 15 points. Exercise makes any rate acceptable.
func ScorePulseRate(bpm float64, exercising bool) int {
	if !finite(bpm) {
		return NeutralPulseRate
	}
	if exercising {
		return 10
	}
	switch {
	case bpm >= 55 && bpm <= 75:
		return 15
	case bpm > 75 && bpm <= 85:
		return 11
	case bpm > 85 && bpm <= 100:
		return 6
	case bpm > 100:
		return 0
	default:
		// bradycardia or a low reading
		return 8
	}
}

// ScorePRV awards up to 20 points for SDNN in ms. Exactly zero means no
// variability was measured and scores neutral; small non-zero SDNN is the
// at-risk band.
func ScorePRV(sdnn float64) int {
	if !finite(sdnn) || sdnn < 0 {
		return NeutralPRV
	}
	switch {
	case sdnn >= 80:
		return 20
	case sdnn >= 50:
		return 16
	case sdnn >= 35:
		return 11
	case sdnn >= 20:
		return 6
	case sdnn > 0:
		return 0
	default:
		return NeutralPRV
	}
}

// ScoreStability awards up to 5 points from the population standard
// deviation of the instantaneous pulse rates. Non-finite entries are ignored.
func ScoreStability(history []float64) int {
	clean := make([]float64, 0, len(history))
	for _, v := range history {
		if finite(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) < MinStabilitySamples {
		return NeutralStability
	}

	mean := 0.0
	for _, v := range clean {
		mean += v
	}
	mean /= float64(len(clean))
	variance := 0.0
	for _, v := range clean {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(len(clean)))

	switch {
	case sd < 3:
		return 5
	case sd < 6:
		return 4
	case sd < 10:
		return 2
	default:
		return 0
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
