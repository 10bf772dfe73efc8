// Package transcriber uploads a recorded clip to a speech-to-text endpoint
// and returns the recognized text.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"voicenotes/apperr"
	"voicenotes/audio"
	"voicenotes/traced"
)

const (
	DefaultURL   = "https://api.siliconflow.cn/v1/audio/transcriptions"
	DefaultModel = "TeleAI/TeleSpeechASR"
)

const op = "transcribe"

type Result struct {
	Text      string
	Model     string
	Metrics   *traced.Metrics
	RateLimit string
}

type Transcriber interface {
	// Transcribe sends clip in a single request. It never retries.
	Transcribe(ctx context.Context, clip audio.Clip, token string) (*Result, error)
	// Warm pre-opens the connection so the upload after a short recording
	// does not pay for the TLS handshake.
	Warm()
}

type Config struct {
	URL   string
	Model string
}

type Client struct {
	client *traced.Client
	apiURL string
	model  string
}

func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		client: traced.NewClient(cfg.URL),
		apiURL: cfg.URL,
		model:  cfg.Model,
	}
}

func (c *Client) Model() string { return c.model }

func (c *Client) Warm() { c.client.Warm() }

// Reachable is used by the doctor checks.
func (c *Client) Reachable() error { return c.client.Reachable() }

type response struct {
	Text *string `json:"text"`
}

func (c *Client) Transcribe(ctx context.Context, clip audio.Clip, token string) (*Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.New(apperr.MissingCredential, op)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", clip.Filename())
	if err != nil {
		return nil, apperr.Wrap(apperr.TranscriptionFailed, op, err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, apperr.Wrap(apperr.TranscriptionFailed, op, err)
	}
	writer.WriteField("model", c.model)
	if err := writer.Close(); err != nil {
		return nil, apperr.Wrap(apperr.TranscriptionFailed, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return nil, apperr.Wrap(apperr.TranscriptionFailed, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.NetworkFailure, op, err)
	}
	if !resp.OK() {
		return nil, apperr.HTTP(apperr.TranscriptionFailed, op, resp.StatusCode, apperr.ParseDetail(resp.Body))
	}

	var r response
	if err := json.Unmarshal(resp.Body, &r); err != nil || r.Text == nil || strings.TrimSpace(*r.Text) == "" {
		return nil, apperr.New(apperr.EmptyResult, op)
	}

	remaining := traced.FirstHeader(resp.Header, "x-ratelimit-remaining-requests")
	limit := traced.FirstHeader(resp.Header, "x-ratelimit-limit-requests")
	return &Result{
		Text:      *r.Text,
		Model:     c.model,
		Metrics:   resp.Metrics,
		RateLimit: remaining + "/" + limit,
	}, nil
}
