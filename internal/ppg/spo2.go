package ppg

import "math"

// SpO2 mapping. The camera is uncalibrated, so the empirical line is clamped
// to a narrow band and implausible ratios are replaced by HealthySpO2.
const (
	SpO2Intercept = 110.0
	SpO2Slope     = 25.0
	SpO2Min       = 90.0
	SpO2Max       = 100.0
	SpO2RatioLow  = 0.4
	SpO2RatioHigh = 3.0
	HealthySpO2   = 98.0
)

// EstimateSpO2 derives the ratio-of-ratios R = (AC/DC red) / (AC/DC blue),
// with AC the standard deviation and DC the mean of each channel.
func EstimateSpO2(red, blue []float64) SpO2Estimate {
	r := acdc(red) / acdc(blue)
	if math.IsNaN(r) || math.IsInf(r, 0) || r < SpO2RatioLow || r > SpO2RatioHigh {
		return SpO2Estimate{Value: HealthySpO2, Ratio: sanitize(r), Substituted: true}
	}
	v := clamp(math.Round(SpO2Intercept-SpO2Slope*r), SpO2Min, SpO2Max)
	return SpO2Estimate{Value: v, Ratio: r}
}

func acdc(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	dc := Mean(data)
	if dc == 0 {
		dc = 1
	}
	return StdDev(data) / dc
}

// sanitize keeps a non-finite ratio out of serialized payloads.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
