package risk

import (
	"strconv"
	"strings"
)

// Plausible blood pressure ranges, inclusive.
const (
	minSystolic  = 50
	maxSystolic  = 300
	minDiastolic = 30
	maxDiastolic = 200
)

// Neutral sub-scores for answers that are missing or not recognised.
const (
	NeutralBloodPressure = 12
	NeutralSmoking       = 8
	NeutralDiabetes      = 6
	NeutralFamilyHistory = 3
	NeutralActivity      = 2
)

// BloodPressure is a parsed "systolic/diastolic" reading in mmHg.
type BloodPressure struct {
	Systolic  int
	Diastolic int
}

// ParseBloodPressure accepts exactly "S/D" with optional spaces around each
// side. It returns false for anything else, including out-of-range values.
func ParseBloodPressure(s string) (BloodPressure, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return BloodPressure{}, false
	}
	sys, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return BloodPressure{}, false
	}
	dia, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return BloodPressure{}, false
	}
	if sys < minSystolic || sys > maxSystolic || dia < minDiastolic || dia > maxDiastolic {
		return BloodPressure{}, false
	}
	return BloodPressure{Systolic: sys, Diastolic: dia}, true
}

// ScoreBloodPressure awards up to 25 points.
func ScoreBloodPressure(s string) int {
	bp, ok := ParseBloodPressure(s)
	if !ok {
		return NeutralBloodPressure
	}
	switch {
	case bp.Systolic < 120 && bp.Diastolic < 80:
		return 25
	case bp.Systolic < 130 && bp.Diastolic < 80:
		return 18
	case bp.Systolic < 140 || bp.Diastolic < 90:
		return 10
	default:
		return 0
	}
}

// ScoreSmoking awards up to 15 points.
func ScoreSmoking(s string) int {
	switch normalize(s) {
	case "never":
		return 15
	case "former":
		return 9
	case "active", "current", "yes":
		return 0
	default:
		return NeutralSmoking
	}
}

// ScoreDiabetes awards up to 10 points.
func ScoreDiabetes(s string) int {
	switch normalize(s) {
	case "no":
		return 10
	case "unsure":
		return 6
	case "yes":
		return 0
	default:
		return NeutralDiabetes
	}
}

// ScoreFamilyHistory awards up to 5 points. A known family history still
// scores 1.
func ScoreFamilyHistory(s string) int {
	switch normalize(s) {
	case "no":
		return 5
	case "unsure":
		return 3
	case "yes":
		return 1
	default:
		return NeutralFamilyHistory
	}
}

// ScoreActivity awards up to 5 points for weekly active days.
func ScoreActivity(s string) int {
	switch normalize(s) {
	case "5+":
		return 5
	case "3-4":
		return 4
	case "1-2":
		return 2
	case "0":
		return 0
	default:
		return NeutralActivity
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
