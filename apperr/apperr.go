// Package apperr classifies the failures a voice note can run into on its way
// from the microphone to the note list.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	Unknown Kind = iota
	MissingCredential
	PermissionDenied
	TranscriptionFailed
	GenerationFailed
	InsufficientBalance
	EmptyResult
	NetworkFailure
)

func (k Kind) String() string {
	switch k {
	case MissingCredential:
		return "missing_credential"
	case PermissionDenied:
		return "permission_denied"
	case TranscriptionFailed:
		return "transcription_failed"
	case GenerationFailed:
		return "generation_failed"
	case InsufficientBalance:
		return "insufficient_balance"
	case EmptyResult:
		return "empty_result"
	case NetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that produced it
// ("record", "transcribe", "generate"). Status and Detail are only set for
// HTTP failures.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by kind, so callers can write
// errors.Is(err, apperr.ErrInsufficientBalance).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Status == 0 && t.Detail == "" && t.Err == nil
}

var (
	ErrMissingCredential   = &Error{Kind: MissingCredential}
	ErrPermissionDenied    = &Error{Kind: PermissionDenied}
	ErrTranscriptionFailed = &Error{Kind: TranscriptionFailed}
	ErrGenerationFailed    = &Error{Kind: GenerationFailed}
	ErrInsufficientBalance = &Error{Kind: InsufficientBalance}
	ErrEmptyResult         = &Error{Kind: EmptyResult}
	ErrNetworkFailure      = &Error{Kind: NetworkFailure}
)

func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func HTTP(kind Kind, op string, status int, detail string) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Detail: detail}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Retriable reports whether repeating the same call with the same input may
// succeed. Missing credentials and denied microphone access need the user to
// act first.
func Retriable(err error) bool {
	switch KindOf(err) {
	case TranscriptionFailed, GenerationFailed, InsufficientBalance, EmptyResult, NetworkFailure:
		return true
	default:
		return false
	}
}

// Message renders err for display.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case MissingCredential:
		return "API token is missing. Set it in Settings."
	case PermissionDenied:
		return "Microphone access was denied. Allow access and start a new recording."
	case TranscriptionFailed:
		return withDetail(fmt.Sprintf("Transcription failed (HTTP %d)", e.Status), e.Detail)
	case GenerationFailed:
		return withDetail(fmt.Sprintf("AI generation failed (HTTP %d)", e.Status), e.Detail)
	case InsufficientBalance:
		return "Account balance is insufficient or the model requires payment. Top up, or try another task."
	case EmptyResult:
		if e.Op == "transcribe" {
			return "No speech was recognized in the recording."
		}
		return "The AI response contained no content."
	case NetworkFailure:
		return "Network request failed. Check your connection and retry."
	default:
		return err.Error()
	}
}

func withDetail(msg, detail string) string {
	if detail == "" {
		return msg + "."
	}
	return msg + ": " + detail
}

// ParseDetail pulls a human-readable message out of an error response body.
// It understands {"message": ...}, {"error": {"message": ...}}, {"error": "..."}
// and {"detail": ...}; anything else yields "".
func ParseDetail(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if err := json.Unmarshal(payload.Error, &s); err == nil && s != "" {
			return s
		}
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
	}
	return ""
}
