package provider

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrContextLength reports that the history no longer fits the model's context window.
var ErrContextLength = errors.New("context length exceeded")

// ErrorClass represents the category of a provider failure.
type ErrorClass int

const (
	// ErrorClassTransient indicates a temporary error such as a timeout, 429 or 5xx.
	ErrorClassTransient ErrorClass = iota

	// ErrorClassContextLength indicates the request exceeded the model's context window.
	ErrorClassContextLength

	// ErrorClassPermanent indicates a non-retryable error.
	ErrorClassPermanent
)

// String returns the string representation of ErrorClass.
func (e ErrorClass) String() string {
	switch e {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassContextLength:
		return "context_length"
	case ErrorClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its classification.
type ClassifiedError struct {
	Class    ErrorClass
	Original error
}

func (c *ClassifiedError) Error() string {
	if c.Original == nil {
		return fmt.Sprintf("classified error: class=%s", c.Class)
	}
	return fmt.Sprintf("%s: %v", c.Class, c.Original)
}

// Unwrap exposes both the original error and, for context-length failures, ErrContextLength.
func (c *ClassifiedError) Unwrap() []error {
	if c.Class == ErrorClassContextLength {
		return []error{c.Original, ErrContextLength}
	}
	return []error{c.Original}
}

// ClassifyError analyzes a provider error.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, ErrContextLength) || isContextLengthError(err) {
		return &ClassifiedError{Class: ErrorClassContextLength, Original: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return &ClassifiedError{Class: ErrorClassTransient, Original: err}
		}
		return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
	}

	if isNetworkError(err) || isTimeoutError(err) {
		return &ClassifiedError{Class: ErrorClassTransient, Original: err}
	}

	// Default to permanent for unknown errors.
	return &ClassifiedError{Class: ErrorClassPermanent, Original: err}
}

// IsContextLength reports whether err is a context-window overflow.
func IsContextLength(err error) bool {
	c := ClassifyError(err)
	return c != nil && c.Class == ErrorClassContextLength
}

func isContextLengthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "context length")
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"dial tcp",
	} {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "deadline exceeded", "timed out"} {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}
