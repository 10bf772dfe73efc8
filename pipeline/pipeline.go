// Package pipeline turns a recording into a note and runs generation tasks
// on notes. It owns the rules about what may run concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voicenotes/apperr"
	"voicenotes/audio"
	"voicenotes/encoder"
	"voicenotes/generator"
	"voicenotes/log"
	"voicenotes/notes"
	"voicenotes/recorder"
	"voicenotes/transcriber"
)

var (
	ErrTranscriptionInFlight = errors.New("a transcription is already running")
	ErrGenerationInFlight    = errors.New("a generation is already running for this note")
	ErrNoClip                = errors.New("no recorded clip to transcribe")
)

type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*audio.Clip, error)
	Reset()
	State() recorder.State
	Clip() (audio.Clip, bool)
}

type TokenSource interface {
	Token() string
}

type Deps struct {
	Recorder    Recorder
	Transcriber transcriber.Transcriber
	Generator   generator.Generator
	Store       *notes.Store
	Tokens      TokenSource
	Events      Events
}

type Pipeline struct {
	rec    Recorder
	trans  transcriber.Transcriber
	gen    generator.Generator
	store  *notes.Store
	tokens TokenSource
	events Events

	mu           sync.Mutex
	transcribing bool
	generating   map[string]generator.Task
	created      int
}

func New(d Deps) *Pipeline {
	if d.Events == nil {
		d.Events = NopEvents{}
	}
	return &Pipeline{
		rec:        d.Recorder,
		trans:      d.Transcriber,
		gen:        d.Generator,
		store:      d.Store,
		tokens:     d.Tokens,
		events:     d.Events,
		generating: make(map[string]generator.Task),
	}
}

func (p *Pipeline) Store() *notes.Store { return p.store }

func (p *Pipeline) RecorderState() recorder.State { return p.rec.State() }

func (p *Pipeline) fail(op string, err error) {
	log.Failure(op, apperr.KindOf(err).String(), err)
}

// Start begins a recording. Without a token it refuses up front, since the
// clip could not be transcribed anyway.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.tokens.Token() == "" {
		err := apperr.New(apperr.MissingCredential, "record")
		p.fail("record", err)
		return err
	}
	wasRecording := isRecording(p.rec.State())
	if err := p.rec.Start(ctx); err != nil {
		p.fail("record", err)
		return err
	}
	if !wasRecording && isRecording(p.rec.State()) {
		log.Info("recording_start")
		go p.trans.Warm()
	}
	return nil
}

func isRecording(s recorder.State) bool {
	_, ok := s.(recorder.Recording)
	return ok
}

// Stop ends the recording and transcribes the clip. On failure the clip
// stays with the recorder for Retry or Discard.
func (p *Pipeline) Stop(ctx context.Context) (notes.Note, error) {
	if p.Transcribing() {
		return notes.Note{}, ErrTranscriptionInFlight
	}
	clip, err := p.rec.Stop()
	if err != nil {
		p.fail("record", err)
		return notes.Note{}, err
	}
	if clip == nil {
		return notes.Note{}, ErrNoClip
	}
	log.Infof("recording_stop duration=%s bytes=%d", clip.Duration.Round(time.Millisecond), len(clip.Data))
	return p.transcribe(ctx, *clip)
}

// Retry resubmits the pending clip.
func (p *Pipeline) Retry(ctx context.Context) (notes.Note, error) {
	clip, ok := p.rec.Clip()
	if !ok {
		return notes.Note{}, ErrNoClip
	}
	log.Info("transcription_retry")
	return p.transcribe(ctx, clip)
}

// Discard drops the pending clip, or an active recording.
func (p *Pipeline) Discard() error {
	if p.Transcribing() {
		return ErrTranscriptionInFlight
	}
	p.rec.Reset()
	log.Info("recording_discarded")
	return nil
}

func (p *Pipeline) Transcribing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transcribing
}

func (p *Pipeline) transcribe(ctx context.Context, clip audio.Clip) (notes.Note, error) {
	p.mu.Lock()
	if p.transcribing {
		p.mu.Unlock()
		return notes.Note{}, ErrTranscriptionInFlight
	}
	p.transcribing = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.transcribing = false
		p.mu.Unlock()
	}()

	p.events.TranscriptionStarted()
	res, err := p.trans.Transcribe(ctx, clip, p.tokens.Token())
	if err != nil {
		p.fail("transcribe", err)
		p.events.TranscriptionFailed(err)
		return notes.Note{}, err
	}
	logTranscription(clip, res)

	n, err := p.store.Create(ctx, res.Text)
	if err != nil {
		err = fmt.Errorf("saving note: %w", err)
		p.fail("transcribe", err)
		p.events.TranscriptionFailed(err)
		return notes.Note{}, err
	}
	log.TranscriptText(n.ID, n.Content)

	p.mu.Lock()
	p.created++
	p.mu.Unlock()

	p.rec.Reset()
	p.events.NoteCreated(n)
	return n, nil
}

func logTranscription(clip audio.Clip, res *transcriber.Result) {
	rawBytes := clip.Duration.Seconds() * encoder.SampleRate * encoder.Channels * encoder.BitsPerSample / 8
	m := log.TranscriptionMetricsData{
		Format:    clip.Format,
		Model:     res.Model,
		AudioS:    clip.Duration.Seconds(),
		RawKB:     rawBytes / 1024,
		EncodedKB: float64(len(clip.Data)) / 1024,
		RateLimit: res.RateLimit,
	}
	if rawBytes > 0 {
		m.CompressionPct = (1 - float64(len(clip.Data))/rawBytes) * 100
	}
	if nm := res.Metrics; nm != nil {
		m.DNSMs = float64(nm.DNS.Milliseconds())
		m.TLSMs = float64(nm.TLS.Milliseconds())
		m.TTFBMs = float64(nm.TTFB.Milliseconds())
		m.TotalMs = float64(nm.Sum().Milliseconds())
		m.ConnReused = nm.ConnReused
		m.TLSProto = nm.TLSProtocol
	}
	log.TranscriptionMetrics(m)
}

// Created is the number of notes this pipeline has created.
func (p *Pipeline) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Generating reports the task running for noteID, if any.
func (p *Pipeline) Generating(noteID string) (generator.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.generating[noteID]
	return t, ok
}

// Generate runs task on the note's content. Success replaces the note's AI
// result; failure is recorded on the note and leaves the previous result.
func (p *Pipeline) Generate(ctx context.Context, noteID string, task generator.Task) (notes.Note, error) {
	if !task.Valid() {
		return notes.Note{}, generator.ErrUnknownTask
	}
	n, err := p.store.Get(noteID)
	if err != nil {
		return notes.Note{}, err
	}

	p.mu.Lock()
	if _, busy := p.generating[noteID]; busy {
		p.mu.Unlock()
		return notes.Note{}, ErrGenerationInFlight
	}
	p.generating[noteID] = task
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.generating, noteID)
		p.mu.Unlock()
	}()

	p.events.GenerationStarted(noteID, task)
	start := time.Now()
	res, err := p.gen.Generate(ctx, n.Content, task, p.tokens.Token())
	if err != nil {
		p.fail("generate", err)
		updated, serr := p.store.SetAIFailure(ctx, noteID, task.String(), apperr.Message(err))
		if serr != nil {
			log.Warnf("recording generation failure on %s: %v", noteID, serr)
			updated = n
		}
		p.events.GenerationFailed(noteID, task, err)
		return updated, err
	}

	updated, err := p.store.SetAIResult(ctx, noteID, task.String(), res.Content)
	if err != nil {
		err = fmt.Errorf("saving AI result: %w", err)
		p.fail("generate", err)
		p.events.GenerationFailed(noteID, task, err)
		return notes.Note{}, err
	}

	gm := log.GenerationMetricsData{
		Task:          task.String(),
		Model:         res.Model,
		PromptChars:   len([]rune(task.Prompt(n.Content))),
		ResponseChars: len([]rune(res.Content)),
		TotalMs:       float64(time.Since(start).Milliseconds()),
	}
	if res.Metrics != nil {
		gm.TTFBMs = float64(res.Metrics.TTFB.Milliseconds())
		gm.ConnReused = res.Metrics.ConnReused
	}
	log.GenerationMetrics(gm)
	p.events.GenerationFinished(updated)
	return updated, nil
}

func (p *Pipeline) Delete(ctx context.Context, noteID string) error {
	if err := p.store.Delete(ctx, noteID); err != nil {
		return err
	}
	log.Infof("note_deleted id=%s", noteID)
	p.events.NoteDeleted(noteID)
	return nil
}
