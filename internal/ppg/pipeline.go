package ppg

import (
	"fmt"
	"time"
)

// Config sizes the per-frame pipeline.
type Config struct {
	Mode       Mode
	BufferSize int           // conditioned samples kept, ~3 s of frames
	MinSamples int           // samples required before detection starts
	Refractory time.Duration // minimum gap between beats
	SeriesSize int           // fingertip red/blue samples kept for batch analysis and SpO2
}

func DefaultConfig(mode Mode) Config {
	return Config{
		Mode:       mode,
		BufferSize: 90,
		MinSamples: 30,
		Refractory: DefaultRefractory,
		SeriesSize: 1800,
	}
}

// FrameReport describes what one frame did to the pipeline.
type FrameReport struct {
	Sample ROISample
	Value  float64
	Status Status
	Beat   *BeatEvent
}

// Pipeline is the frame-side half of a scan: it owns the conditioner, the
// detector and, in fingertip mode, the raw red/blue series. Beats are pushed
// to the queue; the pipeline never reads them back.
type Pipeline struct {
	cfg    Config
	policy Policy
	cond   *Conditioner
	det    *Detector
	queue  *BeatQueue

	red  *Ring[TimedValue]
	blue *Ring[TimedValue]

	beats  int
	frames uint64
	lost   bool
}

func NewPipeline(cfg Config, queue *BeatQueue) (*Pipeline, error) {
	policy, err := PolicyFor(cfg.Mode)
	if err != nil {
		return nil, err
	}
	def := DefaultConfig(cfg.Mode)
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.SeriesSize <= 0 {
		cfg.SeriesSize = def.SeriesSize
	}
	if queue == nil {
		queue = NewBeatQueue(0)
	}

	p := &Pipeline{
		cfg:    cfg,
		policy: policy,
		cond:   NewConditioner(policy, cfg.BufferSize, cfg.MinSamples),
		det:    NewDetector(cfg.Refractory),
		queue:  queue,
	}
	if cfg.Mode == ModeFingertip {
		p.red = NewRing[TimedValue](cfg.SeriesSize)
		p.blue = NewRing[TimedValue](cfg.SeriesSize)
	}
	return p, nil
}

func (p *Pipeline) Mode() Mode { return p.cfg.Mode }

// ProcessFrame samples, conditions and runs detection on one frame.
func (p *Pipeline) ProcessFrame(f Frame) (FrameReport, error) {
	sample, err := p.policy.Sample(f.Image, f.Timestamp)
	if err != nil {
		return FrameReport{}, fmt.Errorf("sample frame %d: %w", f.Seq, err)
	}
	p.frames++

	report := FrameReport{Sample: sample, Value: p.policy.Signal(sample)}
	report.Status = p.cond.Push(sample)

	if report.Status.Failed() {
		p.loseSignal()
		return report, nil
	}
	p.lost = false

	if p.red != nil {
		p.red.Push(TimedValue{T: sample.Timestamp, V: sample.AvgR})
		p.blue.Push(TimedValue{T: sample.Timestamp, V: sample.AvgB})
	}

	if report.Status != StatusDetecting {
		return report, nil
	}

	prev, cur, mean := p.cond.Window()
	if beat, ok := p.det.Step(prev, cur, mean, sample.Timestamp); ok {
		p.beats++
		p.queue.PushBeat(beat.Timestamp)
		report.Beat = &beat
	}
	if p.beats > 0 {
		report.Status = StatusGood
	}
	return report, nil
}

// loseSignal clears every buffer tied to the current signal and tells the
// aggregator to drop its beat history.
func (p *Pipeline) loseSignal() {
	if !p.lost {
		p.queue.PushReset()
		p.lost = true
	}
	p.det.Reset()
	p.beats = 0
	if p.red != nil {
		p.red.Reset()
		p.blue.Reset()
	}
}

// Series returns copies of the fingertip red and blue channels.
func (p *Pipeline) Series() (red, blue []TimedValue) {
	if p.red == nil {
		return nil, nil
	}
	return p.red.Snapshot(), p.blue.Snapshot()
}

// LiveEstimate runs the batch detector over the buffered fingertip signal.
func (p *Pipeline) LiveEstimate() (BatchResult, error) {
	red, _ := p.Series()
	return AnalyzeBatch(invert(red))
}

// Complete enriches an aggregator result with the fingertip-only batch
// estimate and SpO2. A failed batch costs confidence; either way a result at
// or below BatchLowConfidence is flagged, and so is its SpO2. Face results
// are returned unchanged.
func (p *Pipeline) Complete(result ScanResult) ScanResult {
	if p.red == nil {
		return result
	}
	red, blue := p.Series()
	batch, err := AnalyzeBatch(invert(red))
	if err != nil {
		result.Confidence = clamp(result.Confidence-batchFailurePenalty, 0, 100)
		result.LowConfidence = true
	} else {
		result.Batch = &batch
		result.Confidence = min(result.Confidence, batch.Confidence)
	}
	if result.Confidence <= BatchLowConfidence {
		result.LowConfidence = true
	}

	spo2 := EstimateSpO2(values(red), values(blue))
	spo2.LowConfidence = result.LowConfidence
	result.SpO2 = &spo2
	return result
}

// Frames returns the number of frames sampled since the last reset.
func (p *Pipeline) Frames() uint64 { return p.frames }

// Reset returns the pipeline to its initial state.
func (p *Pipeline) Reset() {
	p.cond.Reset()
	p.det.Reset()
	p.beats = 0
	p.frames = 0
	p.lost = false
	if p.red != nil {
		p.red.Reset()
		p.blue.Reset()
	}
}

func invert(series []TimedValue) []TimedValue {
	out := make([]TimedValue, len(series))
	for i, s := range series {
		out[i] = TimedValue{T: s.T, V: -s.V}
	}
	return out
}

func values(series []TimedValue) []float64 {
	out := make([]float64, len(series))
	for i, s := range series {
		out[i] = s.V
	}
	return out
}
