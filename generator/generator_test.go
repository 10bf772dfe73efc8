package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"voicenotes/apperr"
)

func chatServer(t *testing.T, status int, body string, calls *atomic.Int32, gotReq *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if gotReq != nil {
			data, _ := io.ReadAll(r.Body)
			json.Unmarshal(data, gotReq)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseTask(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Task
	}{
		{"Summary", Summarize},
		{"summarize", Summarize},
		{"ACTION ITEMS", ExtractActionItems},
		{"actions", ExtractActionItems},
		{"Polish & Rewrite", Polish},
		{" expand ", Expand},
		{"Expand Thoughts", Expand},
	} {
		got, err := ParseTask(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseTask(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseTask("translate"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("ParseTask(translate) err = %v", err)
	}
}

func TestTaskLabelsAndPrompt(t *testing.T) {
	labels := []string{"Summary", "Action Items", "Polish & Rewrite", "Expand Thoughts"}
	for i, task := range Tasks() {
		if task.String() != labels[i] {
			t.Errorf("task %d label = %q, want %q", i, task.String(), labels[i])
		}
	}
	want := "Summarize the following text concisely, highlighting the main points:\n\n\"buy milk\""
	if got := Summarize.Prompt("buy milk"); got != want {
		t.Errorf("Prompt = %q, want %q", got, want)
	}
	if Task(9).Valid() || Task(9).String() != "unknown" {
		t.Error("out-of-range task should be invalid")
	}
}

func TestGenerateSuccess(t *testing.T) {
	var calls atomic.Int32
	var req chatRequest
	srv := chatServer(t, 200, `{"choices":[{"message":{"role":"assistant","content":"short summary"}}]}`, &calls, &req)
	c := New(Config{URL: srv.URL, Model: "m"})

	res, err := c.Generate(context.Background(), "long rambling note", Summarize, "tok")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "short summary" || res.Task != Summarize {
		t.Errorf("result = %+v", res)
	}
	if req.Model != "m" || len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("request = %+v", req)
	}
	if req.Messages[0].Content != Summarize.Prompt("long rambling note") {
		t.Errorf("prompt = %q", req.Messages[0].Content)
	}
}

func TestGenerateEmptyNoteText(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, 200, `{"choices":[{"message":{"content":"nothing to summarize"}}]}`, &calls, nil)
	if _, err := New(Config{URL: srv.URL}).Generate(context.Background(), "", Expand, "tok"); err != nil {
		t.Errorf("empty note text: %v", err)
	}
}

func TestGenerateRejectsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, 200, `{}`, &calls, nil)
	c := New(Config{URL: srv.URL})

	if _, err := c.Generate(context.Background(), "x", Summarize, ""); !errors.Is(err, apperr.ErrMissingCredential) {
		t.Errorf("empty token err = %v", err)
	}
	if _, err := c.Generate(context.Background(), "x", Task(42), "tok"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("unknown task err = %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("server saw %d requests, want 0", calls.Load())
	}
}

func TestGenerateErrorClassification(t *testing.T) {
	for _, tt := range []struct {
		name   string
		status int
		body   string
		want   *apperr.Error
	}{
		{"balance english", 403, `{"code":30001,"message":"Sorry, your account balance is insufficient"}`, apperr.ErrInsufficientBalance},
		{"paid balance", 403, `{"message":"This model requires paid balance"}`, apperr.ErrInsufficientBalance},
		{"balance chinese", 403, `{"message":"账户余额不足"}`, apperr.ErrInsufficientBalance},
		{"balance unparseable", 403, `Insufficient funds`, apperr.ErrInsufficientBalance},
		{"other 403", 403, `{"message":"model disabled"}`, apperr.ErrGenerationFailed},
		{"server error", 500, `{"error":{"message":"overloaded"}}`, apperr.ErrGenerationFailed},
		{"insufficient on 400 is not balance", 400, `{"message":"insufficient context"}`, apperr.ErrGenerationFailed},
		{"no choices", 200, `{"choices":[]}`, apperr.ErrEmptyResult},
		{"blank content", 200, `{"choices":[{"message":{"content":"  "}}]}`, apperr.ErrEmptyResult},
		{"not json", 200, `ok`, apperr.ErrEmptyResult},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := chatServer(t, tt.status, tt.body, &calls, nil)
			_, err := New(Config{URL: srv.URL}).Generate(context.Background(), "note", Polish, "tok")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want kind %v", err, tt.want.Kind)
			}
			if calls.Load() != 1 {
				t.Errorf("requests = %d, want exactly 1", calls.Load())
			}
		})
	}
}

func TestGenerateDetailOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := chatServer(t, 500, `{"message":"overloaded"}`, &calls, nil)
	_, err := New(Config{URL: srv.URL}).Generate(context.Background(), "note", Polish, "tok")
	var e *apperr.Error
	if !errors.As(err, &e) || e.Status != 500 || e.Detail != "overloaded" {
		t.Errorf("err = %#v", err)
	}
	if got := apperr.Message(err); got != "AI generation failed (HTTP 500): overloaded" {
		t.Errorf("Message = %q", got)
	}
}

func TestGenerateNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	_, err := New(Config{URL: url}).Generate(context.Background(), "note", Summarize, "tok")
	if !errors.Is(err, apperr.ErrNetworkFailure) {
		t.Errorf("err = %v, want NetworkFailure", err)
	}
}
