package ppg

import (
	"fmt"
	"image"
	"time"
)

// Gate thresholds.
const (
	DarkFloor   = 40.0
	FlatEpsilon = 1e-6
	RatioEps    = 0.001

	// Fingertip coverage: red must be bright and dominate green and blue.
	CoverageRedFloor = 150.0
	CoverageRatio    = 0.7
)

// Policy is the capture-mode strategy: where to sample, how to turn a sample
// into a pulse signal, and how to tell that the sensor is covered.
type Policy interface {
	Mode() Mode
	Sample(img image.Image, ts time.Time) (ROISample, error)
	Signal(s ROISample) float64
	Covered(s ROISample) bool
}

// PolicyFor returns the strategy for mode.
func PolicyFor(mode Mode) (Policy, error) {
	switch mode {
	case ModeFace:
		return reflectivePolicy{}, nil
	case ModeFingertip:
		return transmissivePolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// reflectivePolicy: green carries most of the blood-volume pulse under
// ambient light; dividing by red+blue cancels illumination changes.
type reflectivePolicy struct{}

func (reflectivePolicy) Mode() Mode { return ModeFace }

func (reflectivePolicy) Sample(img image.Image, ts time.Time) (ROISample, error) {
	if img == nil {
		return ROISample{}, ErrNilFrame
	}
	return SampleRegion(img, FaceRegion(img.Bounds()), ts)
}

func (reflectivePolicy) Signal(s ROISample) float64 {
	return s.AvgG / (s.AvgR + s.AvgB + RatioEps)
}

func (reflectivePolicy) Covered(ROISample) bool { return true }

// transmissivePolicy: transmitted red drops at systole, so the red mean is
// inverted to turn the drop into a peak.
type transmissivePolicy struct{}

func (transmissivePolicy) Mode() Mode { return ModeFingertip }

func (transmissivePolicy) Sample(img image.Image, ts time.Time) (ROISample, error) {
	return SampleGrid(img, FingertipGrid, FingertipWindowStart, FingertipWindowEnd, ts)
}

func (transmissivePolicy) Signal(s ROISample) float64 {
	return -s.AvgR
}

func (transmissivePolicy) Covered(s ROISample) bool {
	return s.AvgR > CoverageRedFloor &&
		s.AvgG < s.AvgR*CoverageRatio &&
		s.AvgB < s.AvgR*CoverageRatio
}

// Conditioner keeps the sliding signal buffer and applies the quality gates.
type Conditioner struct {
	policy     Policy
	buf        *Ring[float64]
	minSamples int
}

// NewConditioner buffers up to size samples and reports warm-up until
// minSamples are held.
func NewConditioner(policy Policy, size, minSamples int) *Conditioner {
	if minSamples < 2 {
		minSamples = 2
	}
	if size < minSamples {
		size = minSamples
	}
	return &Conditioner{
		policy:     policy,
		buf:        NewRing[float64](size),
		minSamples: minSamples,
	}
}

// Push gates s and, if it passes, appends its signal value. On a failed gate
// the buffer is cleared and the failing status returned.
func (c *Conditioner) Push(s ROISample) Status {
	if s.Brightness < DarkFloor {
		c.Reset()
		return StatusTooDark
	}
	if !c.policy.Covered(s) {
		c.Reset()
		return StatusNoCoverage
	}

	c.buf.Push(c.policy.Signal(s))
	if c.buf.Len() < c.minSamples {
		return StatusWarmingUp
	}

	_, lo, hi := ringStats(c.buf)
	if hi-lo < FlatEpsilon {
		c.Reset()
		return StatusNoCoverage
	}
	return StatusDetecting
}

// Window returns the previous value, the current value and the buffer mean.
// It is only meaningful after Push returned StatusDetecting.
func (c *Conditioner) Window() (prev, cur, mean float64) {
	mean, _, _ = ringStats(c.buf)
	return c.buf.At(-2), c.buf.At(-1), mean
}

func (c *Conditioner) Len() int { return c.buf.Len() }

func (c *Conditioner) Reset() { c.buf.Reset() }
