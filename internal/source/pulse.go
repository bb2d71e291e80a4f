package source

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"
)

var ErrInvalidPulseConfig = errors.New("invalid pulse configuration")

// PulseConfig shapes the synthetic blood-volume pulse.
type PulseConfig struct {
	BPM         float64 // mean rate
	Variability float64 // max beat-to-beat deviation in bpm
	MinBPM      float64
	MaxBPM      float64
	Noise       float64 // gaussian noise, in units of pulse amplitude
	Seed        int64   // 0 seeds from the clock
}

func DefaultPulseConfig() PulseConfig {
	return PulseConfig{
		BPM:         72,
		Variability: 3,
		MinBPM:      40,
		MaxBPM:      180,
		Noise:       0.02,
	}
}

func (c PulseConfig) Validate() error {
	if c.MinBPM <= 0 || c.MaxBPM <= c.MinBPM {
		return ErrInvalidPulseConfig
	}
	if c.BPM < c.MinBPM || c.BPM > c.MaxBPM || c.Variability < 0 || c.Noise < 0 {
		return ErrInvalidPulseConfig
	}
	return nil
}

// PulseStats summarises the beats drawn so far.
type PulseStats struct {
	Beats   int
	MinBPM  float64
	MaxBPM  float64
	MeanBPM float64
	LastBPM float64
}

// PulseGenerator produces a unit-amplitude pulse waveform. Each beat draws
// its own rate around BPM, so the output carries real beat-to-beat
// variability.
type PulseGenerator struct {
	rand   *rand.Rand
	config PulseConfig

	phase  float64 // position inside the current beat, [0,1)
	period float64 // current beat length in seconds
	stats  PulseStats
	mu     sync.Mutex
}

func NewPulseGenerator(cfg PulseConfig) *PulseGenerator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	g := &PulseGenerator{
		rand:   rand.New(rand.NewSource(seed)),
		config: cfg,
	}
	g.nextBeat()
	return g
}

// Next advances the waveform by dt and returns its value in about [-1, 1].
func (g *PulseGenerator) Next(dt time.Duration) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.phase += dt.Seconds() / g.period
	for g.phase >= 1 {
		g.phase--
		g.nextBeat()
	}

	v := math.Sin(2 * math.Pi * g.phase)
	if g.config.Noise > 0 {
		v += g.rand.NormFloat64() * g.config.Noise
	}
	return v
}

// SetBPM changes the mean rate from the next beat on.
func (g *PulseGenerator) SetBPM(bpm float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config.BPM = math.Max(g.config.MinBPM, math.Min(g.config.MaxBPM, bpm))
}

func (g *PulseGenerator) Stats() PulseStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Reset restarts the waveform at the beginning of a beat and clears stats.
func (g *PulseGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.phase = 0
	g.stats = PulseStats{}
	g.nextBeat()
}

func (g *PulseGenerator) nextBeat() {
	bpm := g.config.BPM
	if g.config.Variability > 0 {
		bpm += (g.rand.Float64()*2 - 1) * g.config.Variability
	}
	bpm = math.Max(g.config.MinBPM, math.Min(g.config.MaxBPM, bpm))
	g.period = 60 / bpm
	g.updateStats(bpm)
}

func (g *PulseGenerator) updateStats(bpm float64) {
	s := &g.stats
	s.Beats++
	s.LastBPM = bpm
	if s.Beats == 1 || bpm < s.MinBPM {
		s.MinBPM = bpm
	}
	if bpm > s.MaxBPM {
		s.MaxBPM = bpm
	}
	s.MeanBPM += (bpm - s.MeanBPM) / float64(s.Beats)
}
