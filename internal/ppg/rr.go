package ppg

import (
	"math"
	"sort"
	"time"
)

// Physiological RR bounds, exclusive: roughly 40 to 180 bpm.
const (
	MinRR = 330 * time.Millisecond
	MaxRR = 1500 * time.Millisecond
)

// ValidRR reports whether an interval is physiologically plausible.
func ValidRR(d time.Duration) bool {
	return d > MinRR && d < MaxRR
}

// Intervals returns the deltas between adjacent beat times, in milliseconds.
func Intervals(beats []time.Time) []float64 {
	if len(beats) < 2 {
		return nil
	}
	out := make([]float64, 0, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		out = append(out, durationMs(beats[i].Sub(beats[i-1])))
	}
	return out
}

// FilterRR keeps only the intervals inside the physiological bounds and
// reports how many were dropped.
func FilterRR(rrMs []float64) (valid []float64, rejected int) {
	valid = make([]float64, 0, len(rrMs))
	for _, rr := range rrMs {
		if math.IsNaN(rr) || !ValidRR(time.Duration(rr*float64(time.Millisecond))) {
			rejected++
			continue
		}
		valid = append(valid, rr)
	}
	return valid, rejected
}

// BPM converts an RR interval in milliseconds to beats per minute.
func BPM(rrMs float64) float64 {
	if rrMs <= 0 {
		return 0
	}
	return 60000 / rrMs
}

// SDNN is the population standard deviation of RR intervals in ms.
// Fewer than two intervals carry no variability and yield 0.
func SDNN(rrMs []float64) float64 {
	if len(rrMs) < 2 {
		return 0
	}
	return StdDev(rrMs)
}

// Mean returns the arithmetic mean, or NaN for an empty slice.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// StdDev returns the population standard deviation, or NaN for an empty slice.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	m := Mean(data)
	ss := 0.0
	for _, v := range data {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(data)))
}

// Median returns the median, or NaN for an empty slice.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
