// Package pipeline holds the per-utterance capture machinery: an
// amplitude-based endpointer and the command buffer it governs.
package pipeline

import (
	"math"
	"time"
)

// Endpointer decides when a captured utterance has ended. It tracks the last
// moment frame energy exceeded a fixed amplitude floor and races two
// deadlines: a silence timeout against the last sound, and a phrase limit
// against capture start. This is a deliberate simplicity/latency tradeoff,
// not a statistical voice-activity detector.
type Endpointer struct {
	threshold float64
	lastSound time.Time
}

// NewEndpointer creates an endpointer with the given amplitude floor. A
// non-positive threshold treats every frame as sound, so only the phrase
// limit can end capture.
func NewEndpointer(threshold float64) *Endpointer {
	return &Endpointer{threshold: threshold}
}

// Reset marks capture start; the utterance counts as sound until proven silent.
func (e *Endpointer) Reset(now time.Time) {
	e.lastSound = now
}

// OnFrame updates the last-sound timestamp when frame energy clears the floor.
func (e *Endpointer) OnFrame(frame []int16, now time.Time) {
	if e.threshold <= 0 || frameEnergy(frame) >= e.threshold {
		e.lastSound = now
	}
}

// ShouldStop reports whether either deadline has fired: silence since the
// last sound, or total capture duration reaching the phrase limit. The two
// race independently; whichever fires first ends capture.
func (e *Endpointer) ShouldStop(now time.Time, silenceTimeout, phraseLimit time.Duration, captureStart time.Time) bool {
	if silenceTimeout > 0 && now.Sub(e.lastSound) >= silenceTimeout {
		return true
	}
	if phraseLimit > 0 && now.Sub(captureStart) >= phraseLimit {
		return true
	}
	return false
}

// LastSound returns the most recent above-threshold frame time.
func (e *Endpointer) LastSound() time.Time {
	return e.lastSound
}

// frameEnergy is the L2 norm of the samples.
func frameEnergy(frame []int16) float64 {
	var sum float64
	for _, sample := range frame {
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum)
}
