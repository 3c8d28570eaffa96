package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnknown           = errors.New("completion failed")
)

var userMessages = map[error]string{
	ErrMissingCredential: "No API key is configured, so I cannot answer yet. Set a key for the chat provider and try again.",
	ErrRateLimited:       "The oracle has reached its rate limit and the quota is exhausted for now. Please wait a moment and try again.",
	ErrUnauthorized:      "The oracle rejected our credentials. Please check the API key and try again.",
	ErrUnknown:           "Forgive me, my connection to the ether is weak. Please try again.",
}

// CompletionError is returned by Service.Complete for every failed call.
// Kind is one of the Err* sentinels; Message is safe to show to the user.
type CompletionError struct {
	Kind    error
	Message string
	Err     error
}

// NewCompletionError builds a classified failure with the standard user text for kind.
func NewCompletionError(kind, cause error) *CompletionError {
	return &CompletionError{Kind: kind, Message: userMessages[kind], Err: cause}
}

func (e *CompletionError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *CompletionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage returns the human-readable text for err, falling back to the
// generic failure text for errors outside the taxonomy.
func UserMessage(err error) string {
	var ce *CompletionError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return userMessages[ErrUnknown]
}

type statusCoder interface {
	StatusCode() int
}

var (
	rateLimitHints    = []string{"status 429", "status code: 429", "rate limit", "ratelimit", "quota", "resource_exhausted", "resource exhausted", "too many requests"}
	unauthorizedHints = []string{"status 401", "status 403", "status code: 401", "status code: 403", "unauthorized", "api key not valid", "invalid api key", "invalid x-api-key", "authentication", "permission_denied", "accessdenied"}
)

// classify maps a provider failure onto the error taxonomy.
func classify(err error) *CompletionError {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		switch sc.StatusCode() {
		case http.StatusTooManyRequests:
			return NewCompletionError(ErrRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return NewCompletionError(ErrUnauthorized, err)
		}
	}

	// Some SDKs (ark) do not expose typed errors, and Gemini reports a bad key
	// as a 400, so the message is consulted as well.
	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, rateLimitHints):
		return NewCompletionError(ErrRateLimited, err)
	case containsAny(text, unauthorizedHints):
		return NewCompletionError(ErrUnauthorized, err)
	default:
		return NewCompletionError(ErrUnknown, err)
	}
}

func containsAny(text string, hints []string) bool {
	for _, hint := range hints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
