// Package beep plays the short cues for recording start, stop and failure.
package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

// Disable silences every cue for the rest of the process.
func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

const (
	sampleRate = 44100

	// start: high and short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// stop: a little lower and longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// error: low double beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

type cue int

const (
	cueStart cue = iota
	cueEnd
	cueError
)

// tone renders a decaying sine into mono samples.
func tone(freq, duration, volume, decay float64) []int16 {
	n := int(math.Round(sampleRate * duration))
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func doubleTone(freq, beepDur, gapDur, volume, decay float64) []int16 {
	b := tone(freq, beepDur, volume, decay)
	gap := make([]int16, int(math.Round(sampleRate*gapDur)))
	out := make([]int16, 0, len(b)*2+len(gap))
	out = append(out, b...)
	out = append(out, gap...)
	return append(out, b...)
}

// samplesFor returns the mono samples of a cue. tail is the extra length
// given to single ticks so slow sinks drain the whole envelope.
func samplesFor(c cue, tail float64) []int16 {
	switch c {
	case cueStart:
		return tone(startFreq, tail, startVolume, startDecay)
	case cueEnd:
		return tone(endFreq, tail, endVolume, endDecay)
	default:
		return doubleTone(errorFreq, 0.08, 0.05, errorVolume, errorDecay)
	}
}

func PlayStart() {
	if Enabled() {
		play(cueStart)
	}
}

func PlayEnd() {
	if Enabled() {
		play(cueEnd)
	}
}

func PlayError() {
	if Enabled() {
		play(cueError)
	}
}
