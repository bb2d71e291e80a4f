// Package source provides frame sources for scans: a synthetic pulse
// emulator, a directory of recorded images and a push source fed by the
// host.
package source

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Krimson/strokeguard/internal/ppg"
	"github.com/Krimson/strokeguard/internal/scan"
)

// SyntheticConfig describes the emulated camera.
type SyntheticConfig struct {
	Pulse PulseConfig

	// Amplitude is the pulse swing in 8-bit colour levels.
	Amplitude float64
	// Jitter perturbs frame timestamps like a real camera clock. It is
	// capped below half a frame so timestamps stay ordered.
	Jitter time.Duration
	// Frames ends the stream after this many frames; 0 is endless.
	Frames int
	// Dark renders frames below the brightness floor.
	Dark bool

	Epoch time.Time // first frame time; zero uses the clock at Open
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Pulse:     DefaultPulseConfig(),
		Amplitude: 10,
	}
}

// Synthetic renders uniform frames whose colour follows a PulseGenerator.
// Frame times advance by exactly 1/fps per frame regardless of how fast
// frames are read, so a scan can run faster than real time. The returned
// image is reused and valid until the next call to Next.
type Synthetic struct {
	cfg SyntheticConfig
	gen *PulseGenerator
	rng *rand.Rand

	mu    sync.Mutex
	open  bool
	mode  ppg.Mode
	fps   int
	epoch time.Time
	seq   uint64
	img   *image.RGBA
}

func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if err := cfg.Pulse.Validate(); err != nil {
		return nil, err
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = DefaultSyntheticConfig().Amplitude
	}
	seed := cfg.Pulse.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{
		cfg: cfg,
		gen: NewPulseGenerator(cfg.Pulse),
		rng: rand.New(rand.NewSource(seed + 1)),
	}, nil
}

func (s *Synthetic) Open(ctx context.Context, mode ppg.Mode, cfg scan.CaptureConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return fmt.Errorf("synthetic camera: %w", scan.ErrDeviceBusy)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 {
		return fmt.Errorf("synthetic camera %dx%d@%d: %w", cfg.Width, cfg.Height, cfg.FPS, scan.ErrDeviceNotFound)
	}

	s.open = true
	s.mode = mode
	s.fps = cfg.FPS
	s.seq = 0
	s.epoch = s.cfg.Epoch
	if s.epoch.IsZero() {
		s.epoch = time.Now()
	}
	s.img = image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height))
	s.gen.Reset()
	return nil
}

func (s *Synthetic) Next(ctx context.Context) (ppg.Frame, error) {
	if err := ctx.Err(); err != nil {
		return ppg.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return ppg.Frame{}, scan.ErrSourceExhausted
	}
	if s.cfg.Frames > 0 && s.seq >= uint64(s.cfg.Frames) {
		return ppg.Frame{}, scan.ErrSourceExhausted
	}

	interval := time.Second / time.Duration(s.fps)
	step := interval
	if s.seq == 0 {
		step = 0
	}
	v := s.gen.Next(step)
	s.fill(s.colour(v))

	ts := s.epoch.Add(time.Duration(s.seq) * interval)
	if s.cfg.Jitter > 0 {
		j := min(s.cfg.Jitter, interval/2-1)
		ts = ts.Add(time.Duration(float64(j) * (s.rng.Float64()*2 - 1)))
	}

	f := ppg.Frame{Seq: s.seq, Timestamp: ts, Image: s.img}
	s.seq++
	return f, nil
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Stats exposes the underlying pulse generator statistics.
func (s *Synthetic) Stats() PulseStats {
	return s.gen.Stats()
}

// colour maps a pulse value to the pixel a camera would see in each mode.
func (s *Synthetic) colour(v float64) [3]uint8 {
	a := s.cfg.Amplitude
	if s.cfg.Dark {
		return [3]uint8{level(10 + a*v/4), level(12), level(10)}
	}
	switch s.mode {
	case ppg.ModeFingertip:
		// transmitted red dims at systole; the blue swing puts the
		// red/blue ratio near 0.5, a healthy saturation
		return [3]uint8{level(200 - a*v), level(60), level(60 + 0.6*a*v)}
	default:
		return [3]uint8{level(100), level(120 + a*v), level(100)}
	}
}

func (s *Synthetic) fill(c [3]uint8) {
	pix := s.img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = c[0]
		pix[i+1] = c[1]
		pix[i+2] = c[2]
		pix[i+3] = 255
	}
}

func level(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}
