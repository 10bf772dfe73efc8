package notes

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openStore(t *testing.T, p Persister) *Store {
	t.Helper()
	s, err := Open(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCreatePrependsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemory()
	s := openStore(t, mem)

	first, err := s.Create(ctx, "first")
	if err != nil {
		t.Fatal(err)
	}
	second, _ := s.Create(ctx, "second")

	list := s.List()
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("order = %v", list)
	}
	if first.ID == second.ID || first.ID == "" {
		t.Error("ids must be unique and non-empty")
	}
	if latest, ok := s.Latest(); !ok || latest.Content != "second" {
		t.Errorf("Latest = %v, %v", latest, ok)
	}
	if mem.Saves() != 2 {
		t.Errorf("saves = %d, want 2", mem.Saves())
	}

	reopened := openStore(t, mem)
	if got := reopened.List(); len(got) != 2 || got[0].Content != "second" {
		t.Errorf("reopened = %v", got)
	}
}

func TestFailedSaveKeepsPreviousCollection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := NewMemory()
	s := openStore(t, mem)
	n, _ := s.Create(ctx, "keep me")

	mem.Err = errors.New("disk full")
	if _, err := s.Create(ctx, "lost"); err == nil {
		t.Fatal("expected save error")
	}
	if err := s.Delete(ctx, n.ID); err == nil {
		t.Fatal("expected save error")
	}
	if _, err := s.SetAIResult(ctx, n.ID, "Summary", "x"); err == nil {
		t.Fatal("expected save error")
	}

	list := s.List()
	if len(list) != 1 || list[0].ID != n.ID || list[0].AI != nil {
		t.Errorf("collection changed after failed save: %v", list)
	}
}

func TestAIResultAndFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t, NewMemory())
	n, _ := s.Create(ctx, "text")

	got, err := s.SetAIResult(ctx, n.ID, "Summary", "short")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Processed() || got.AI.PromptType != "Summary" || got.AI.Response != "short" {
		t.Fatalf("AI = %+v", got.AI)
	}

	got, err = s.SetAIFailure(ctx, n.ID, "Expand Thoughts", "balance")
	if err != nil {
		t.Fatal(err)
	}
	if got.AI == nil || got.AI.Response != "short" {
		t.Error("failure must not touch the previous result")
	}
	if got.AIFailure == nil || got.AIFailure.PromptType != "Expand Thoughts" || got.AIFailure.At.IsZero() {
		t.Errorf("AIFailure = %+v", got.AIFailure)
	}

	got, _ = s.SetAIResult(ctx, n.ID, "Polish & Rewrite", "polished")
	if got.AIFailure != nil {
		t.Error("success should clear the failure")
	}
	if got.Content != "text" {
		t.Error("content must not change")
	}
}

func TestReturnedNotesAreCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t, NewMemory())
	n, _ := s.Create(ctx, "text")
	s.SetAIResult(ctx, n.ID, "Summary", "short")

	got, _ := s.Get(n.ID)
	got.AI.Response = "tampered"
	got.Content = "tampered"

	again, _ := s.Get(n.ID)
	if again.AI.Response != "short" || again.Content != "text" {
		t.Error("mutating a returned note leaked into the store")
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t, NewMemory())
	a, _ := s.Create(ctx, "a")
	b, _ := s.Create(ctx, "b")
	c, _ := s.Create(ctx, "c")

	if err := s.Delete(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != c.ID || list[1].ID != a.ID {
		t.Errorf("after delete = %v", list)
	}
	if err := s.Delete(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
	if _, err := s.Get(b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get deleted = %v", err)
	}
}

func TestUnknownID(t *testing.T) {
	t.Parallel()
	s := openStore(t, NewMemory())
	if _, err := s.SetAIFailure(context.Background(), "nope", "Summary", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if _, ok := s.Latest(); ok {
		t.Error("empty store has no latest note")
	}
}

func TestCreatedAtUsesClock(t *testing.T) {
	t.Parallel()
	s := openStore(t, NewMemory())
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	n, _ := s.Create(context.Background(), "x")
	if !n.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v", n.CreatedAt)
	}
}
