package main

import (
	"math"
	"sync/atomic"
	"time"

	"voicenotes/beep"
	"voicenotes/generator"
	"voicenotes/notes"
	"voicenotes/pipeline"
	"voicenotes/recorder"
)

// Messages delivered to the front-end. The TUI receives them through
// tea.Program.Send; the headless mode prints them.
type (
	recorderStateMsg struct{ State recorder.State }
	recorderTickMsg  struct{ Elapsed time.Duration }

	transcribingMsg        struct{}
	transcriptionFailedMsg struct{ Err error }
	noteCreatedMsg         struct{ Note notes.Note }
	noteDeletedMsg         struct{ ID string }

	generationStartedMsg struct {
		NoteID string
		Task   generator.Task
	}
	generationFinishedMsg struct{ Note notes.Note }
	generationFailedMsg   struct {
		NoteID string
		Task   generator.Task
		Err    error
	}
)

// sink adapts recorder and pipeline events into messages and plays the
// matching cues.
type sink struct {
	emit  func(msg any)
	level atomic.Uint64
}

var (
	_ recorder.Events = (*sink)(nil)
	_ pipeline.Events = (*sink)(nil)
)

func newSink(emit func(msg any)) *sink {
	return &sink{emit: emit}
}

func (s *sink) RecorderState(st recorder.State) {
	switch st.(type) {
	case recorder.Recording:
		beep.PlayStart()
	case recorder.Stopped:
		beep.PlayEnd()
	case recorder.Denied:
		beep.PlayError()
	}
	s.emit(recorderStateMsg{State: st})
}

func (s *sink) RecorderTick(elapsed time.Duration) { s.emit(recorderTickMsg{Elapsed: elapsed}) }

// Level records the input level. It is called on the audio thread, so it
// only stores; the TUI samples it on its animation tick.
func (s *sink) Level(level float64) { s.level.Store(math.Float64bits(level)) }

func (s *sink) CurrentLevel() float64 { return math.Float64frombits(s.level.Load()) }

func (s *sink) TranscriptionStarted() { s.emit(transcribingMsg{}) }

func (s *sink) TranscriptionFailed(err error) {
	beep.PlayError()
	s.emit(transcriptionFailedMsg{Err: err})
}

func (s *sink) NoteCreated(n notes.Note) { s.emit(noteCreatedMsg{Note: n}) }

func (s *sink) NoteDeleted(id string) { s.emit(noteDeletedMsg{ID: id}) }

func (s *sink) GenerationStarted(noteID string, task generator.Task) {
	s.emit(generationStartedMsg{NoteID: noteID, Task: task})
}

func (s *sink) GenerationFinished(n notes.Note) { s.emit(generationFinishedMsg{Note: n}) }

func (s *sink) GenerationFailed(noteID string, task generator.Task, err error) {
	s.emit(generationFailedMsg{NoteID: noteID, Task: task, Err: err})
}
