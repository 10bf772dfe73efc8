package main

import "time"

const (
	meterInterval    = 60 * time.Millisecond
	silenceWarnAfter = 3 * time.Second
	voiceLevel       = 0.02
	voiceMinRatio    = 0.10
	voiceClearRatio  = 0.25 // higher threshold to clear warning (hysteresis)
)

type silenceEvent int

const (
	silenceNone  silenceEvent = iota
	silenceWarn               // no voice detected
	silenceClear              // voice came back after a warning
)

// silenceMonitor tracks how many recent meter ticks carried voice and
// decides when the "no voice detected" hint turns on and off.
type silenceMonitor struct {
	window []bool
	ticks  int
	warned bool
}

func newSilenceMonitor() *silenceMonitor {
	return &silenceMonitor{window: make([]bool, int(silenceWarnAfter/meterInterval))}
}

func (m *silenceMonitor) Reset() {
	clear(m.window)
	m.ticks, m.warned = 0, false
}

func (m *silenceMonitor) Warned() bool { return m.warned }

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, len(m.window))
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[i] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// Tick records one meter sample.
func (m *silenceMonitor) Tick(level float64) silenceEvent {
	m.window[m.ticks%len(m.window)] = level >= voiceLevel
	m.ticks++

	r := m.ratio()
	if m.ticks >= len(m.window) && r < voiceMinRatio && !m.warned {
		m.warned = true
		return silenceWarn
	}
	if m.warned && r >= voiceClearRatio {
		m.warned = false
		return silenceClear
	}
	return silenceNone
}
