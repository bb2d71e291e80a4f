// Package scan drives one PPG scan end to end: it acquires frames from a
// FrameSource, runs them through a ppg.Pipeline, aggregates beats every
// window and, at the end, scores the result against the latest baseline.
package scan

import (
	"context"
	"errors"
	"time"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/risk"
)

type State string

const (
	StateIdle      State = "idle"
	StateArmed     State = "armed"
	StateScanning  State = "scanning"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// Terminal reports whether the state ends a scan.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Acquisition errors. Sources wrap these with %w.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("camera not found")
	ErrDeviceBusy       = errors.New("camera busy")
	ErrSourceExhausted  = errors.New("frame source exhausted")

	ErrAlreadyRunning = errors.New("scan already running")
	ErrNotRunning     = errors.New("no scan running")
)

// ErrorCode is the stable code reported to hosts.
type ErrorCode string

const (
	CodeNone               ErrorCode = ""
	CodePermissionDenied   ErrorCode = "permission_denied"
	CodeDeviceNotFound     ErrorCode = "device_not_found"
	CodeDeviceBusy         ErrorCode = "device_busy"
	CodeAcquisitionFailed  ErrorCode = "acquisition_failed"
	CodeInsufficientSignal ErrorCode = "insufficient_signal"
)

// CodeFor classifies err.
func CodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		return CodeDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		return CodeDeviceBusy
	case errors.Is(err, ppg.ErrInsufficientSignal):
		return CodeInsufficientSignal
	default:
		return CodeAcquisitionFailed
	}
}

// CaptureConfig controls acquisition and aggregation timing.
type CaptureConfig struct {
	FPS     int           // nominal capture rate
	Window  time.Duration // aggregation interval
	Windows int           // windows per scan

	// Tick overrides the frame loop interval; zero means 1/FPS. Offline runs
	// use a short tick to process recorded frames faster than real time.
	Tick time.Duration

	LiveEvery  int // fingertip live estimate cadence in frames, 0 disables
	QueueSize  int
	Exercising bool

	Width  int
	Height int
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		FPS:       30,
		Window:    5 * time.Second,
		Windows:   6,
		LiveEvery: 60,
		QueueSize: 64,
		Width:     640,
		Height:    480,
	}
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	def := DefaultCaptureConfig()
	if c.FPS <= 0 {
		c.FPS = def.FPS
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Windows <= 0 {
		c.Windows = def.Windows
	}
	if c.Tick <= 0 {
		c.Tick = time.Second / time.Duration(c.FPS)
	}
	if c.LiveEvery < 0 {
		c.LiveEvery = 0
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	return c
}

// Duration is the nominal scan length.
func (c CaptureConfig) Duration() time.Duration {
	return c.Window * time.Duration(c.Windows)
}

// FrameSource is a camera or anything that can stand in for one.
type FrameSource interface {
	// Open acquires the device. Failures wrap one of the acquisition errors.
	Open(ctx context.Context, mode ppg.Mode, cfg CaptureConfig) error
	// Next returns the current frame. ErrSourceExhausted ends the frame loop
	// without failing the scan.
	Next(ctx context.Context) (ppg.Frame, error)
	Close() error
}

// BaselineProvider supplies the latest lifestyle baseline. ok is false when
// none is known yet.
type BaselineProvider interface {
	Baseline(ctx context.Context) (b risk.Baseline, ok bool)
}

// Progress is emitted after every window that produced vitals.
type Progress struct {
	Mode        ppg.Mode         `json:"mode"`
	State       State            `json:"state"`
	Window      ppg.WindowResult `json:"window"`
	Elapsed     int              `json:"elapsed_windows"`
	Total       int              `json:"total_windows"`
	Samples     int              `json:"samples"`
	Status      ppg.Status       `json:"status"`
	Live        *ppg.BatchResult `json:"live,omitempty"`
	Provisional *risk.Score      `json:"provisional_score,omitempty"`
	At          time.Time        `json:"at"`
}

// Outcome is the terminal report of a scan. LowConfidence mirrors
// Result.LowConfidence so clients can caveat the score directly.
type Outcome struct {
	Mode          ppg.Mode         `json:"mode"`
	State         State            `json:"state"`
	Code          ErrorCode        `json:"code,omitempty"`
	Error         string           `json:"error,omitempty"`
	Result        *ppg.ScanResult  `json:"result,omitempty"`
	LowConfidence bool             `json:"low_confidence,omitempty"`
	Score         *risk.Score      `json:"score,omitempty"`
	Triage        risk.TriageColor `json:"triage,omitempty"`
	Baseline      *risk.Baseline   `json:"baseline,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// Sink receives scan events. Calls come from the scan's aggregation
// goroutine, or from the frame goroutine for acquisition failures.
type Sink interface {
	Progress(ctx context.Context, p Progress) error
	Complete(ctx context.Context, o Outcome) error
	Abort(ctx context.Context, o Outcome) error
}

// MetricsFrom turns a scan result into scoring input.
func MetricsFrom(r ppg.ScanResult, exercising bool) risk.Metrics {
	return risk.Metrics{
		PulseRate:        r.PulseRate,
		SDNNMs:           r.PRV,
		PulseRateHistory: r.PulseRateSamples,
		IsExercising:     exercising,
	}
}
