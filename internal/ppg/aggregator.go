package ppg

import (
	"fmt"
	"time"
)

// AggregatorConfig holds the minimum-sample guards.
type AggregatorConfig struct {
	HistorySize  int // beats retained between windows
	MinBeats     int // beats required before a window is attempted
	MinIntervals int // valid intervals required for a window to emit
	MinSamples   int // accepted pulse-rate samples required at scan end
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		HistorySize:  30,
		MinBeats:     5,
		MinIntervals: 3,
		MinSamples:   10,
	}
}

// Aggregator turns drained beats into windowed vitals. It is owned by the
// consumer side of a BeatQueue and is not safe for concurrent use.
type Aggregator struct {
	cfg AggregatorConfig

	history   *Ring[time.Time]
	processed time.Time

	samples  []float64
	prvs     []float64
	rejected int
	windows  int
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	def := DefaultAggregatorConfig()
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.MinBeats <= 0 {
		cfg.MinBeats = def.MinBeats
	}
	if cfg.MinIntervals <= 0 {
		cfg.MinIntervals = def.MinIntervals
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	return &Aggregator{
		cfg:     cfg,
		history: NewRing[time.Time](cfg.HistorySize),
	}
}

// Ingest applies drained queue items in order. A reset marker drops the beat
// history so beats from a lost signal are never paired with new ones.
func (a *Aggregator) Ingest(items []QueueItem) {
	for _, item := range items {
		if item.Reset {
			a.history.Reset()
			a.processed = time.Time{}
			continue
		}
		if a.history.Len() > 0 && !item.Beat.Timestamp.After(a.history.At(-1)) {
			continue
		}
		a.history.Push(item.Beat.Timestamp)
	}
}

// Window evaluates the beats that arrived since the last emitted window.
// It returns false when the guards are not met; those beats stay pending.
func (a *Aggregator) Window() (WindowResult, bool) {
	if a.history.Len() < a.cfg.MinBeats {
		return WindowResult{}, false
	}

	// intervals ending at or before the last processed beat were counted
	// by an earlier window
	beats := a.history.Snapshot()
	start := 1
	if !a.processed.IsZero() {
		for start < len(beats) && !beats[start].After(a.processed) {
			start++
		}
	}
	raw := Intervals(beats[start-1:])

	valid, rejected := FilterRR(raw)
	if len(valid) < a.cfg.MinIntervals {
		return WindowResult{}, false
	}

	rates := make([]float64, len(valid))
	for i, rr := range valid {
		rates[i] = roundTo(BPM(rr), 1)
	}
	prv := roundTo(SDNN(valid), 2)

	a.processed = beats[len(beats)-1]
	a.samples = append(a.samples, rates...)
	a.prvs = append(a.prvs, prv)
	a.rejected += rejected
	a.windows++

	return WindowResult{
		Index:      a.windows,
		PulseRate:  roundTo(Mean(rates), 1),
		PRV:        prv,
		PulseRates: rates,
		Intervals:  len(valid),
		Rejected:   rejected,
	}, true
}

// Samples returns the number of accepted pulse-rate samples so far.
func (a *Aggregator) Samples() int { return len(a.samples) }

// Finalize builds the scan result. With fewer than MinSamples accepted
// samples it fails with ErrInsufficientSignal; samples are never padded,
// since duplicates would hide variability.
func (a *Aggregator) Finalize(mode Mode) (ScanResult, error) {
	if len(a.samples) < a.cfg.MinSamples {
		return ScanResult{}, fmt.Errorf("%w: %d samples, need %d", ErrInsufficientSignal, len(a.samples), a.cfg.MinSamples)
	}

	prv := roundTo(Mean(a.prvs), 2)
	confidence := 100.0
	if a.rejected > 0 {
		confidence -= batchRejectPenalty
	}
	if prv > batchHighPRV {
		confidence -= batchHighPRVPenalty
	}

	samples := make([]float64, len(a.samples))
	copy(samples, a.samples)

	return ScanResult{
		Mode:             mode,
		PulseRateSamples: samples,
		PulseRate:        roundTo(Mean(samples), 1),
		MedianPulseRate:  roundTo(Median(samples), 1),
		PRV:              prv,
		Confidence:       clamp(confidence, 0, 100),
		Windows:          a.windows,
	}, nil
}

// Reset discards all accumulated state.
func (a *Aggregator) Reset() {
	a.history.Reset()
	a.processed = time.Time{}
	a.samples = nil
	a.prvs = nil
	a.rejected = 0
	a.windows = 0
}
