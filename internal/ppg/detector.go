package ppg

import "time"

// DefaultRefractory is the minimum gap between two accepted beats.
const DefaultRefractory = 400 * time.Millisecond

// Detector finds beats as local maxima of the conditioned signal. A beat is
// a rising-to-falling turn whose value is above the buffer mean, at least the
// refractory period after the previous beat. Comparing against the rolling
// mean tracks slow baseline drift without a separate filter.
type Detector struct {
	refractory time.Duration
	rising     bool
	lastBeat   time.Time
}

func NewDetector(refractory time.Duration) *Detector {
	if refractory <= 0 {
		refractory = DefaultRefractory
	}
	return &Detector{refractory: refractory}
}

// Step feeds one sample. It reports a beat at ts when the signal has just
// turned down from a peak above mean.
func (d *Detector) Step(prev, cur, mean float64, ts time.Time) (BeatEvent, bool) {
	switch {
	case cur > prev:
		d.rising = true
	case d.rising && cur < prev && cur > mean && d.elapsed(ts):
		d.rising = false
		d.lastBeat = ts
		return BeatEvent{Timestamp: ts}, true
	}
	return BeatEvent{}, false
}

func (d *Detector) elapsed(ts time.Time) bool {
	if d.lastBeat.IsZero() {
		return true
	}
	return ts.Sub(d.lastBeat) > d.refractory
}

// Reset forgets the last beat and the rising flag.
func (d *Detector) Reset() {
	d.rising = false
	d.lastBeat = time.Time{}
}
