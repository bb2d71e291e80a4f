// Package ppg extracts pulse vitals from a stream of camera frames.
//
// A Pipeline reduces each frame to an ROISample, conditions it into a scalar
// pulse signal, gates on signal quality and detects beats. Beats travel
// through a BeatQueue to an Aggregator, which turns them into per-window
// pulse rate and PRV values and, at the end of a scan, into a ScanResult.
package ppg

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

// Mode selects the capture geometry and the signal formula.
type Mode string

const (
	// ModeFace is reflective capture of the face under ambient light.
	ModeFace Mode = "face"
	// ModeFingertip is transmissive capture with a fingertip pressed on the
	// lens and the torch on.
	ModeFingertip Mode = "fingertip"
)

// ParseMode accepts the mode names used by hosts and a few aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "face", "webcam", "reflective", "quick-check":
		return ModeFace, nil
	case "fingertip", "finger", "transmissive":
		return ModeFingertip, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Status is the per-frame signal quality reported to the host.
type Status string

const (
	StatusWarmingUp  Status = "warming_up"
	StatusTooDark    Status = "too_dark"
	StatusNoCoverage Status = "no_coverage"
	StatusDetecting  Status = "detecting"
	StatusGood       Status = "good"
)

// Failed reports whether the status is a failed quality gate.
func (s Status) Failed() bool {
	return s == StatusTooDark || s == StatusNoCoverage
}

var (
	ErrUnknownMode        = errors.New("unknown capture mode")
	ErrEmptyRegion        = errors.New("region of interest is empty")
	ErrNilFrame           = errors.New("frame has no image")
	ErrInsufficientSignal = errors.New("insufficient signal")
	ErrTooFewPeaks        = errors.New("too few peaks")
)

// Frame is one captured video frame.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
}

// ROISample is the reduction of one frame's region of interest.
type ROISample struct {
	Timestamp  time.Time `json:"timestamp"`
	AvgR       float64   `json:"avg_r"`
	AvgG       float64   `json:"avg_g"`
	AvgB       float64   `json:"avg_b"`
	Brightness float64   `json:"brightness"`
}

// BeatEvent is a detected heartbeat.
type BeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// TimedValue is a scalar with its capture time.
type TimedValue struct {
	T time.Time
	V float64
}

// WindowResult is the output of one aggregation window.
type WindowResult struct {
	Index      int       `json:"index"`
	PulseRate  float64   `json:"pulse_rate"`
	PRV        float64   `json:"prv"`
	PulseRates []float64 `json:"pulse_rates"`
	Intervals  int       `json:"intervals"`
	Rejected   int       `json:"rejected"`
}

// SpO2Estimate is the uncalibrated fingertip oxygen saturation proxy.
// LowConfidence marks an estimate from a scan whose batch analysis failed
// or scored at or below BatchLowConfidence.
type SpO2Estimate struct {
	Value         float64 `json:"value"`
	Ratio         float64 `json:"ratio"`
	Substituted   bool    `json:"substituted"`
	LowConfidence bool    `json:"low_confidence"`
}

// ScanResult is produced once per completed scan.
type ScanResult struct {
	Mode             Mode          `json:"mode"`
	PulseRateSamples []float64     `json:"pulse_rate_samples"`
	PulseRate        float64       `json:"pulse_rate"`
	MedianPulseRate  float64       `json:"median_pulse_rate"`
	PRV              float64       `json:"prv"`
	Confidence       float64       `json:"confidence"`
	LowConfidence    bool          `json:"low_confidence"`
	Windows          int           `json:"windows"`
	SpO2             *SpO2Estimate `json:"spo2,omitempty"`
	Batch            *BatchResult  `json:"batch,omitempty"`
}
