package audio

import "math"

// smoothingFactor is the EMA weight given to the newest block. Chosen so the
// displayed level settles within a few blocks without flickering.
const smoothingFactor = 0.4

// RMS returns the root-mean-square amplitude of the block, normalized to
// [0, 1]. A silent or empty block returns 0.
func RMS(b Block) float64 {
	if len(b) == 0 {
		return 0
	}
	var sum float64
	for _, v := range b {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(b)))
	if rms > 1 {
		rms = 1
	}
	return rms
}

// Meter derives a display loudness value from captured blocks, smoothing
// across blocks with an exponential moving average.
type Meter struct {
	ema float64
}

func NewMeter() *Meter {
	return &Meter{}
}

// Level folds the block into the running average and returns the smoothed
// loudness in [0, 1].
func (m *Meter) Level(b Block) float64 {
	m.ema = smoothingFactor*RMS(b) + (1-smoothingFactor)*m.ema
	return m.ema
}

// Reset clears the running average, for reuse across sessions.
func (m *Meter) Reset() {
	m.ema = 0
}
