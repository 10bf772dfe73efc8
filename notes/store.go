// Package notes keeps the ordered note collection, newest first, and writes
// it through a Persister on every change.
package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("note not found")

// Persister stores the whole collection at once.
type Persister interface {
	LoadNotes(ctx context.Context) ([]Note, error)
	SaveNotes(ctx context.Context, notes []Note) error
}

type Store struct {
	p   Persister
	now func() time.Time

	mu    sync.Mutex
	notes []Note
}

// Open loads the collection from p.
func Open(ctx context.Context, p Persister) (*Store, error) {
	loaded, err := p.LoadNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading notes: %w", err)
	}
	return &Store{p: p, now: time.Now, notes: loaded}, nil
}

func (s *Store) List() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.notes)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func (s *Store) Get(id string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return Note{}, ErrNotFound
	}
	return s.notes[i].clone(), nil
}

// Latest returns the newest note.
func (s *Store) Latest() (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notes) == 0 {
		return Note{}, false
	}
	return s.notes[0].clone(), true
}

func (s *Store) index(id string) int {
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

// commit saves next and makes it current only if the save succeeded.
// Callers hold s.mu.
func (s *Store) commit(ctx context.Context, next []Note) error {
	if err := s.p.SaveNotes(ctx, next); err != nil {
		return fmt.Errorf("saving notes: %w", err)
	}
	s.notes = next
	return nil
}

// Create prepends a new note with the given content.
func (s *Store) Create(ctx context.Context, content string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := Note{ID: uuid.NewString(), Content: content, CreatedAt: s.now()}
	next := make([]Note, 0, len(s.notes)+1)
	next = append(next, n)
	next = append(next, cloneAll(s.notes)...)
	if err := s.commit(ctx, next); err != nil {
		return Note{}, err
	}
	return n.clone(), nil
}

func (s *Store) update(ctx context.Context, id string, fn func(*Note)) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Note{}, ErrNotFound
	}
	next := cloneAll(s.notes)
	fn(&next[i])
	if err := s.commit(ctx, next); err != nil {
		return Note{}, err
	}
	return next[i].clone(), nil
}

// SetAIResult overwrites the note's AI result and clears any recorded
// failure.
func (s *Store) SetAIResult(ctx context.Context, id, promptType, response string) (Note, error) {
	return s.update(ctx, id, func(n *Note) {
		n.AI = &AIResult{PromptType: promptType, Response: response}
		n.AIFailure = nil
	})
}

// SetAIFailure records a failed attempt and leaves the AI result alone.
func (s *Store) SetAIFailure(ctx context.Context, id, promptType, message string) (Note, error) {
	at := s.now()
	return s.update(ctx, id, func(n *Note) {
		n.AIFailure = &AIFailure{PromptType: promptType, Message: message, At: at}
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return ErrNotFound
	}
	next := make([]Note, 0, len(s.notes)-1)
	next = append(next, cloneAll(s.notes[:i])...)
	next = append(next, cloneAll(s.notes[i+1:])...)
	return s.commit(ctx, next)
}

// Memory is a Persister that keeps the last saved collection in memory.
type Memory struct {
	mu    sync.Mutex
	notes []Note
	saves int
	// Err, when set, fails every SaveNotes.
	Err error
}

func NewMemory(initial ...Note) *Memory {
	return &Memory{notes: cloneAll(initial)}
}

func (m *Memory) LoadNotes(context.Context) ([]Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAll(m.notes), nil
}

func (m *Memory) SaveNotes(_ context.Context, notes []Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.notes = cloneAll(notes)
	m.saves++
	return nil
}

func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
