// Package traced wraps an http.Client so every request reports how long each
// network phase took.
package traced

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

type Metrics struct {
	DNS        time.Duration
	ConnWait   time.Duration
	TCP        time.Duration
	TLS        time.Duration
	ReqHeaders time.Duration
	ReqBody    time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration

	ConnReused  bool
	TLSProtocol string
}

func (m *Metrics) Sum() time.Duration {
	return m.ConnWait + m.DNS + m.TCP + m.TLS + m.ReqHeaders + m.ReqBody + m.TTFB + m.Download
}

// FirstHeader returns the first non-empty value among keys, or "?".
func FirstHeader(h http.Header, keys ...string) string {
	for _, k := range keys {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return "?"
}

type Client struct {
	client  *http.Client
	warmURL string
}

// NewClient returns a client with a small keep-alive pool. warmURL is the
// endpoint Warm pre-connects to. There is no request timeout: a hung server
// stalls the caller until it gives up on the context.
func NewClient(warmURL string) *Client {
	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		warmURL: warmURL,
	}
}

type Response struct {
	Body       []byte
	StatusCode int
	Header     http.Header
	Metrics    *Metrics
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// timeline collects trace timestamps. The transport fires the callbacks from
// its dial, write and read goroutines, so every access holds mu.
type timeline struct {
	mu sync.Mutex

	getConn, gotConn           time.Time
	dnsStart, dnsDone          time.Time
	tcpStart, tcpDone          time.Time
	tlsStart, tlsDone          time.Time
	wroteHeaders, wroteRequest time.Time
	firstByte                  time.Time
	reused                     bool
	tlsProto                   string
}

func (t *timeline) mark(at *time.Time) func() {
	return func() {
		now := time.Now()
		t.mu.Lock()
		*at = now
		t.mu.Unlock()
	}
}

func (t *timeline) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(string) { t.mark(&t.getConn)() },
		GotConn: func(info httptrace.GotConnInfo) {
			now := time.Now()
			t.mu.Lock()
			t.gotConn, t.reused = now, info.Reused
			t.mu.Unlock()
		},
		DNSStart:          func(httptrace.DNSStartInfo) { t.mark(&t.dnsStart)() },
		DNSDone:           func(httptrace.DNSDoneInfo) { t.mark(&t.dnsDone)() },
		ConnectStart:      func(_, _ string) { t.mark(&t.tcpStart)() },
		ConnectDone:       func(_, _ string, _ error) { t.mark(&t.tcpDone)() },
		TLSHandshakeStart: t.mark(&t.tlsStart),
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			now := time.Now()
			t.mu.Lock()
			t.tlsDone, t.tlsProto = now, state.NegotiatedProtocol
			t.mu.Unlock()
		},
		WroteHeaders:         t.mark(&t.wroteHeaders),
		WroteRequest:         func(httptrace.WroteRequestInfo) { t.mark(&t.wroteRequest)() },
		GotFirstResponseByte: t.mark(&t.firstByte),
	}
}

// span is end-start, or zero when either end was never reached.
func span(start, end time.Time) time.Duration {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start)
}

func (t *timeline) metrics(start, done time.Time) *Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Metrics{
		DNS:         span(t.dnsStart, t.dnsDone),
		ConnWait:    span(t.getConn, t.gotConn),
		TCP:         span(t.tcpStart, t.tcpDone),
		TLS:         span(t.tlsStart, t.tlsDone),
		ReqHeaders:  span(t.gotConn, t.wroteHeaders),
		ReqBody:     span(t.wroteHeaders, t.wroteRequest),
		TTFB:        span(t.wroteRequest, t.firstByte),
		Download:    span(t.firstByte, done),
		Total:       done.Sub(start),
		ConnReused:  t.reused,
		TLSProtocol: t.tlsProto,
	}
}

func (c *Client) Do(req *http.Request) (*Response, error) {
	tl := &timeline{}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), tl.trace()))
	reqStart := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Metrics:    tl.metrics(reqStart, time.Now()),
	}, nil
}

// Warm opens a connection to the warm URL so the next real request can reuse
// it, and returns the TLS handshake time. Errors are swallowed.
func (c *Client) Warm() time.Duration {
	if c.warmURL == "" {
		return 0
	}
	tl := &timeline{}
	req, err := http.NewRequest(http.MethodHead, c.warmURL, nil)
	if err != nil {
		return 0
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), tl.trace()))
	resp, err := c.client.Do(req)
	if err != nil {
		return 0
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return span(tl.tlsStart, tl.tlsDone)
}

// Reachable reports whether the warm URL answers at all, with any status.
func (c *Client) Reachable() error {
	req, err := http.NewRequest(http.MethodHead, c.warmURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
