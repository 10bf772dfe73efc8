package pipeline

import (
	"voicenotes/generator"
	"voicenotes/notes"
)

// Events is how the pipeline reports progress to a front-end. Recorder
// state and ticks arrive separately through recorder.Events.
type Events interface {
	TranscriptionStarted()
	TranscriptionFailed(err error)
	NoteCreated(n notes.Note)
	NoteDeleted(id string)
	GenerationStarted(noteID string, task generator.Task)
	GenerationFinished(n notes.Note)
	GenerationFailed(noteID string, task generator.Task, err error)
}

// NopEvents ignores everything; embed it to implement a subset.
type NopEvents struct{}

func (NopEvents) TranscriptionStarted()                          {}
func (NopEvents) TranscriptionFailed(error)                      {}
func (NopEvents) NoteCreated(notes.Note)                         {}
func (NopEvents) NoteDeleted(string)                             {}
func (NopEvents) GenerationStarted(string, generator.Task)       {}
func (NopEvents) GenerationFinished(notes.Note)                  {}
func (NopEvents) GenerationFailed(string, generator.Task, error) {}
