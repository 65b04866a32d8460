package player

import (
	"math"
	"sync"

	"github.com/faiface/beep"
)

// Analyser is a pass-through tap over the sample stream that keeps running
// level measurements for visualizers. Only locally-decoded audio is routed
// through it; cross-origin streams are played untapped.
type Analyser struct {
	mu   sync.Mutex
	rms  float64
	peak float64
}

// NewAnalyser creates an idle analyser.
func NewAnalyser() *Analyser {
	return &Analyser{}
}

// Tap wraps source so every streamed sample updates the analyser. The
// analyser is a single shared tap: wrapping a new source replaces the old
// edge rather than stacking another one.
func (a *Analyser) Tap(source beep.Streamer) beep.Streamer {
	return &analyserStreamer{analyser: a, source: source}
}

// Levels returns the most recent RMS and peak levels in [0, 1].
func (a *Analyser) Levels() (rms, peak float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rms, a.peak
}

func (a *Analyser) observe(samples [][2]float64, n int) {
	if n == 0 {
		return
	}

	var sum, peak float64
	for i := 0; i < n; i++ {
		mono := (samples[i][0] + samples[i][1]) / 2
		sum += mono * mono
		if abs := math.Abs(mono); abs > peak {
			peak = abs
		}
	}

	a.mu.Lock()
	a.rms = math.Sqrt(sum / float64(n))
	a.peak = peak
	a.mu.Unlock()
}

type analyserStreamer struct {
	analyser *Analyser
	source   beep.Streamer
}

func (s *analyserStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = s.source.Stream(samples)
	s.analyser.observe(samples, n)
	return n, ok
}

func (s *analyserStreamer) Err() error {
	return s.source.Err()
}
