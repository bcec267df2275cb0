package llm

import (
	"errors"
	"fmt"
	"strings"
)

// StatusError is an HTTP-level failure returned by a provider API
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Message))
}

// ErrorKind classifies a failed generation for the reader
type ErrorKind int

const (
	Unexpected ErrorKind = iota
	ServerOverloaded
	ServerOther
	ClientRateLimited
	ClientOther
)

func (k ErrorKind) String() string {
	switch k {
	case ServerOverloaded:
		return "server_overloaded"
	case ServerOther:
		return "server_other"
	case ClientRateLimited:
		return "client_rate_limited"
	case ClientOther:
		return "client_other"
	default:
		return "unexpected"
	}
}

// GenerationError is a classified summarizer failure
type GenerationError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Message is the human-readable explanation shown in the channel
func (e *GenerationError) Message() string {
	switch e.Kind {
	case ServerOverloaded:
		return "The model is currently overloaded. Please retry shortly."
	case ServerOther:
		return fmt.Sprintf("Model server error (%d): %s", e.StatusCode, detail(e.Err))
	case ClientRateLimited:
		return "API quota or rate limit exceeded. Please try again later."
	case ClientOther:
		return fmt.Sprintf("Model client error (%d): %s", e.StatusCode, detail(e.Err))
	default:
		return fmt.Sprintf("Unexpected error: %s", detail(e.Err))
	}
}

// Classify maps a provider error onto the reader-facing taxonomy
func Classify(err error) *GenerationError {
	if err == nil {
		return nil
	}
	var gerr *GenerationError
	if errors.As(err, &gerr) {
		return gerr
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return &GenerationError{Kind: Unexpected, Err: err}
	}

	msg := strings.ToLower(statusErr.Message)
	code := statusErr.StatusCode
	kind := Unexpected
	switch {
	case code >= 500 && (code == 503 || strings.Contains(msg, "overloaded")):
		kind = ServerOverloaded
	case code >= 500:
		kind = ServerOther
	case code >= 400 && (code == 429 || strings.Contains(msg, "quota") || strings.Contains(msg, "rate")):
		kind = ClientRateLimited
	case code >= 400:
		kind = ClientOther
	}
	return &GenerationError{Kind: kind, StatusCode: code, Err: err}
}

func detail(err error) string {
	if err == nil {
		return "unknown"
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return truncate(strings.TrimSpace(statusErr.Message), 300)
	}
	return truncate(err.Error(), 300)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
