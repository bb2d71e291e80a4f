package ppg

import (
	"fmt"
	"math"
)

// Batch analysis parameters for a fixed-duration scan.
const (
	BatchMinSamples     = 100
	BatchMinPeaks       = 3
	BatchSmoothSeconds  = 0.1
	BatchMaxBPM         = 200.0
	BatchThresholdSD    = 0.5
	BatchOutlierLow     = 0.6
	BatchOutlierHigh    = 1.5
	BatchMinHeartRate   = 40.0
	BatchMaxHeartRate   = 220.0
	BatchMaxSDNN        = 150.0
	BatchLowConfidence  = 40.0
	batchRejectPenalty  = 20.0
	batchHighPRVPenalty = 10.0
	batchHighPRV        = 80.0
	batchFailurePenalty = 30.0
)

// BatchResult is the outcome of analysing a buffered signal in one pass.
type BatchResult struct {
	FPS        float64   `json:"fps"`
	Peaks      int       `json:"peaks"`
	RR         []float64 `json:"rr"`
	Rejected   int       `json:"rejected"`
	HeartRate  float64   `json:"heart_rate"`
	SDNN       float64   `json:"sdnn"`
	Confidence float64   `json:"confidence"`
}

// Smooth applies a centered moving average with the given half-width.
func Smooth(data []float64, half int) []float64 {
	out := make([]float64, len(data))
	if half < 0 {
		half = 0
	}
	for i := range data {
		lo := max(0, i-half)
		hi := min(len(data)-1, i+half)
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += data[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// FindPeaks returns indices of local maxima above mean + 0.5 sd that are at
// least minDistance samples after the previously accepted peak.
func FindPeaks(data []float64, minDistance int) []int {
	if len(data) < 3 {
		return nil
	}
	threshold := Mean(data) + StdDev(data)*BatchThresholdSD

	var peaks []int
	for i := 1; i < len(data)-1; i++ {
		if data[i] > data[i-1] && data[i] > data[i+1] && data[i] > threshold {
			if len(peaks) == 0 || i-peaks[len(peaks)-1] >= minDistance {
				peaks = append(peaks, i)
			}
		}
	}
	return peaks
}

// AnalyzeBatch runs the fixed-duration detector over a whole signal: smooth,
// find prominent peaks, derive RR intervals, drop implausible and outlying
// intervals, then compute heart rate, SDNN and a confidence heuristic.
func AnalyzeBatch(signal []TimedValue) (BatchResult, error) {
	if len(signal) < BatchMinSamples {
		return BatchResult{}, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientSignal, len(signal), BatchMinSamples)
	}

	span := signal[len(signal)-1].T.Sub(signal[0].T)
	if span <= 0 {
		return BatchResult{}, fmt.Errorf("%w: non-increasing timestamps", ErrInsufficientSignal)
	}
	fps := float64(len(signal)) / span.Seconds()

	values := make([]float64, len(signal))
	for i, s := range signal {
		values[i] = s.V
	}
	smoothed := Smooth(values, max(1, int(math.Floor(fps*BatchSmoothSeconds))))
	minDistance := int(math.Floor(fps * 60 / BatchMaxBPM))
	peaks := FindPeaks(smoothed, minDistance)
	if len(peaks) < BatchMinPeaks {
		return BatchResult{}, fmt.Errorf("%w: found %d", ErrTooFewPeaks, len(peaks))
	}

	raw := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		raw = append(raw, durationMs(signal[peaks[i]].T.Sub(signal[peaks[i-1]].T)))
	}
	plausible, rejected := FilterRR(raw)
	if len(plausible) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no plausible intervals", ErrTooFewPeaks)
	}

	meanRR := Mean(plausible)
	valid := make([]float64, 0, len(plausible))
	for _, rr := range plausible {
		if rr > meanRR*BatchOutlierLow && rr < meanRR*BatchOutlierHigh {
			valid = append(valid, rr)
		} else {
			rejected++
		}
	}
	if len(valid) < 2 {
		return BatchResult{}, fmt.Errorf("%w: %d valid intervals", ErrTooFewPeaks, len(valid))
	}

	hr := math.Round(BPM(Mean(valid)))
	sdnn := math.Min(math.Round(SDNN(valid)), BatchMaxSDNN)

	confidence := 100.0
	if rejected > 0 {
		confidence -= batchRejectPenalty
	}
	if sdnn > batchHighPRV {
		confidence -= batchHighPRVPenalty
	}

	return BatchResult{
		FPS:        fps,
		Peaks:      len(peaks),
		RR:         valid,
		Rejected:   rejected,
		HeartRate:  clamp(hr, BatchMinHeartRate, BatchMaxHeartRate),
		SDNN:       sdnn,
		Confidence: clamp(confidence, 0, 100),
	}, nil
}
