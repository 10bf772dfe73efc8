package generator

import (
	"context"
	"strings"
	"sync"

	"voicenotes/apperr"
	"voicenotes/traced"
)

// Fake returns canned output per task. Release, when set, blocks every call
// until it is closed, so tests can hold a generation in flight.
type Fake struct {
	mu      sync.Mutex
	outputs map[Task]string
	err     error
	calls   int
	Release chan struct{}
}

func NewFake(outputs map[Task]string, err error) *Fake {
	return &Fake{outputs: outputs, err: err}
}

func (f *Fake) Set(outputs map[Task]string, err error) {
	f.mu.Lock()
	f.outputs, f.err = outputs, err
	f.mu.Unlock()
}

func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) Generate(ctx context.Context, noteText string, task Task, token string) (*Result, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.New(apperr.MissingCredential, op)
	}
	if !task.Valid() {
		return nil, ErrUnknownTask
	}
	f.mu.Lock()
	f.calls++
	release := f.Release
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.NetworkFailure, op, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out, ok := f.outputs[task]
	if !ok || strings.TrimSpace(out) == "" {
		return nil, apperr.New(apperr.EmptyResult, op)
	}
	return &Result{Task: task, Content: out, Model: "fake", Metrics: &traced.Metrics{}}, nil
}
