package traced

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsSum(t *testing.T) {
	m := &Metrics{
		ConnWait:   10 * time.Millisecond,
		DNS:        20 * time.Millisecond,
		TCP:        30 * time.Millisecond,
		TLS:        40 * time.Millisecond,
		ReqHeaders: 5 * time.Millisecond,
		ReqBody:    15 * time.Millisecond,
		TTFB:       50 * time.Millisecond,
		Download:   25 * time.Millisecond,
	}
	got := m.Sum()
	want := 195 * time.Millisecond
	if got != want {
		t.Errorf("Sum() = %v, want %v", got, want)
	}
}

func TestFirstHeader(t *testing.T) {
	h := http.Header{}
	h.Set("X-Rate-Limit", "100")

	if got := FirstHeader(h, "X-Missing", "X-Rate-Limit"); got != "100" {
		t.Errorf("got %q, want %q", got, "100")
	}
	if got := FirstHeader(h, "X-A", "X-B"); got != "?" {
		t.Errorf("got %q, want %q", got, "?")
	}
}

func TestClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo-Len", "5")
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated || !resp.OK() {
		t.Errorf("StatusCode = %d, OK = %v", resp.StatusCode, resp.OK())
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body = %q, want hello", resp.Body)
	}
	if resp.Header.Get("X-Echo-Len") != "5" {
		t.Error("missing response header")
	}
	if resp.Metrics == nil || resp.Metrics.Total <= 0 {
		t.Error("expected total time to be recorded")
	}
}

func TestResponseOK(t *testing.T) {
	for _, tt := range []struct {
		code int
		want bool
	}{
		{200, true}, {204, true}, {301, false}, {403, false}, {500, false},
	} {
		if got := (&Response{StatusCode: tt.code}).OK(); got != tt.want {
			t.Errorf("OK(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestWarmWithoutURL(t *testing.T) {
	if d := NewClient("").Warm(); d != 0 {
		t.Errorf("Warm() = %v, want 0", d)
	}
}

func TestReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	if err := NewClient(srv.URL).Reachable(); err != nil {
		t.Errorf("Reachable: %v", err)
	}
	url := srv.URL
	srv.Close()
	if err := NewClient(url).Reachable(); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestClientDoConcurrentMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		time.Sleep(5 * time.Millisecond)
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	errs := make(chan error, 8)
	metrics := make(chan *Metrics, 8)
	for i := 0; i < 8; i++ {
		go func() {
			req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(strings.Repeat("x", 64<<10)))
			if err != nil {
				errs <- err
				return
			}
			resp, err := c.Do(req)
			if err != nil {
				errs <- err
				return
			}
			metrics <- resp.Metrics
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case err := <-errs:
			t.Fatalf("Do: %v", err)
		case m := <-metrics:
			if m.TTFB <= 0 {
				t.Errorf("TTFB = %v, want > 0", m.TTFB)
			}
			if m.TTFB > m.Total || m.ReqBody < 0 || m.Download < 0 {
				t.Errorf("inconsistent metrics: %+v", *m)
			}
		}
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("again"))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.Metrics.ConnReused {
		t.Error("expected the pooled connection to be reused")
	}
}

func TestSpan(t *testing.T) {
	start := time.Now()
	if got := span(time.Time{}, start); got != 0 {
		t.Errorf("span with zero start = %v", got)
	}
	if got := span(start, time.Time{}); got != 0 {
		t.Errorf("span with zero end = %v", got)
	}
	if got := span(start, start.Add(time.Second)); got != time.Second {
		t.Errorf("span = %v, want 1s", got)
	}
}
