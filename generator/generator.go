// Package generator asks a chat-completion endpoint to transform a note's text
// according to one of a fixed set of tasks.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"voicenotes/apperr"
	"voicenotes/traced"
)

const (
	DefaultURL   = "https://api.siliconflow.cn/v1/chat/completions"
	DefaultModel = "Qwen/Qwen2.5-7B-Instruct"
)

const op = "generate"

// Substrings of a 403 message that mean the account, not the request, is the
// problem.
var balanceMarkers = []string{"insufficient", "paid balance", "余额"}

type Result struct {
	Task    Task
	Content string
	Model   string
	Metrics *traced.Metrics
}

type Generator interface {
	Generate(ctx context.Context, noteText string, task Task, token string) (*Result, error)
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

func (c *Client) Reachable() error { return c.client.Reachable() }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) Generate(ctx context.Context, noteText string, task Task, token string) (*Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.New(apperr.MissingCredential, op)
	}
	if !task.Valid() {
		return nil, ErrUnknownTask
	}

	payload, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: task.Prompt(noteText)}},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.GenerationFailed, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Wrap(apperr.GenerationFailed, op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.NetworkFailure, op, err)
	}
	if !resp.OK() {
		return nil, classify(resp.StatusCode, resp.Body)
	}

	var r chatResponse
	if err := json.Unmarshal(resp.Body, &r); err != nil || len(r.Choices) == 0 ||
		strings.TrimSpace(r.Choices[0].Message.Content) == "" {
		return nil, apperr.New(apperr.EmptyResult, op)
	}

	return &Result{
		Task:    task,
		Content: r.Choices[0].Message.Content,
		Model:   c.model,
		Metrics: resp.Metrics,
	}, nil
}

func classify(status int, body []byte) error {
	detail := apperr.ParseDetail(body)
	if status == http.StatusForbidden {
		// match against the raw body too, for bodies ParseDetail cannot read
		haystack := strings.ToLower(detail + " " + string(body))
		for _, m := range balanceMarkers {
			if strings.Contains(haystack, m) {
				return apperr.HTTP(apperr.InsufficientBalance, op, status, detail)
			}
		}
	}
	return apperr.HTTP(apperr.GenerationFailed, op, status, detail)
}
