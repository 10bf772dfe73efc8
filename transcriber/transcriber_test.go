package transcriber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"voicenotes/apperr"
	"voicenotes/audio"
)

var testClip = audio.Clip{Data: []byte("fLaC-fake-audio"), Format: "flac", Duration: time.Second}

type captured struct {
	auth     string
	model    string
	filename string
	file     []byte
}

func newServer(t *testing.T, status int, body string, calls *atomic.Int32, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		if got != nil {
			got.auth = r.Header.Get("Authorization")
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				got.model = r.FormValue("model")
				if f, hdr, err := r.FormFile("file"); err == nil {
					got.filename = hdr.Filename
					got.file, _ = io.ReadAll(f)
					f.Close()
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("x-ratelimit-limit-requests", "10")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribeSuccess(t *testing.T) {
	var got captured
	srv := newServer(t, http.StatusOK, `{"text":"  hello world"}`, nil, &got)
	c := New(Config{URL: srv.URL, Model: "test-model"})

	res, err := c.Transcribe(context.Background(), testClip, "sk-123")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "  hello world" {
		t.Errorf("Text = %q, want exact response text", res.Text)
	}
	if res.RateLimit != "9/10" {
		t.Errorf("RateLimit = %q", res.RateLimit)
	}
	if res.Metrics == nil {
		t.Error("expected network metrics")
	}
	if got.auth != "Bearer sk-123" {
		t.Errorf("Authorization = %q", got.auth)
	}
	if got.model != "test-model" {
		t.Errorf("model = %q", got.model)
	}
	if got.filename != "recording.flac" {
		t.Errorf("filename = %q", got.filename)
	}
	if string(got.file) != string(testClip.Data) {
		t.Errorf("file part = %q", got.file)
	}
}

func TestTranscribeDefaults(t *testing.T) {
	c := New(Config{})
	if c.apiURL != DefaultURL || c.Model() != DefaultModel {
		t.Errorf("defaults = %q %q", c.apiURL, c.Model())
	}
}

func TestTranscribeMissingTokenSendsNothing(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, http.StatusOK, `{"text":"x"}`, &calls, nil)
	c := New(Config{URL: srv.URL})

	for _, token := range []string{"", "   "} {
		_, err := c.Transcribe(context.Background(), testClip, token)
		if !errors.Is(err, apperr.ErrMissingCredential) {
			t.Errorf("token %q: err = %v, want MissingCredential", token, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("server saw %d requests, want 0", calls.Load())
	}
}

func TestTranscribeHTTPFailure(t *testing.T) {
	for _, tt := range []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{"json message", 401, `{"message":"Invalid token"}`, "Invalid token"},
		{"nested error", 400, `{"error":{"message":"unsupported file"}}`, "unsupported file"},
		{"html", 502, `<html>bad gateway</html>`, ""},
		{"403 is not balance here", 403, `{"message":"insufficient balance"}`, "insufficient balance"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil, nil)
			_, err := New(Config{URL: srv.URL}).Transcribe(context.Background(), testClip, "tok")
			if !errors.Is(err, apperr.ErrTranscriptionFailed) {
				t.Fatalf("err = %v, want TranscriptionFailed", err)
			}
			var e *apperr.Error
			errors.As(err, &e)
			if e.Status != tt.status || e.Detail != tt.wantDetail {
				t.Errorf("status=%d detail=%q, want %d %q", e.Status, e.Detail, tt.status, tt.wantDetail)
			}
			if !apperr.Retriable(err) {
				t.Error("transcription failure should be retriable")
			}
		})
	}
}

func TestTranscribeEmptyResult(t *testing.T) {
	for _, body := range []string{`{"text":""}`, `{"text":"   "}`, `{}`, `not json`, `{"text":null}`} {
		t.Run(body, func(t *testing.T) {
			srv := newServer(t, http.StatusOK, body, nil, nil)
			_, err := New(Config{URL: srv.URL}).Transcribe(context.Background(), testClip, "tok")
			if !errors.Is(err, apperr.ErrEmptyResult) {
				t.Errorf("err = %v, want EmptyResult", err)
			}
		})
	}
}

func TestTranscribeNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{URL: url}).Transcribe(context.Background(), testClip, "tok")
	if !errors.Is(err, apperr.ErrNetworkFailure) {
		t.Errorf("err = %v, want NetworkFailure", err)
	}
}

func TestFake(t *testing.T) {
	f := NewFake("hello", nil)
	res, err := f.Transcribe(context.Background(), testClip, "tok")
	if err != nil || res.Text != "hello" {
		t.Fatalf("got %v, %v", res, err)
	}
	if _, err := f.Transcribe(context.Background(), testClip, ""); !errors.Is(err, apperr.ErrMissingCredential) {
		t.Errorf("empty token err = %v", err)
	}
	f.Set("", nil)
	if _, err := f.Transcribe(context.Background(), testClip, "tok"); !errors.Is(err, apperr.ErrEmptyResult) {
		t.Errorf("blank text err = %v", err)
	}
	if len(f.Clips()) != 2 {
		t.Errorf("Clips = %d, want 2", len(f.Clips()))
	}
}
