// Package errors defines the structured errors a chat turn can fail with.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of turn failure.
type ErrorCode string

const (
	// ErrCodeConfiguration indicates a missing or inconsistent model configuration.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrCodeEmbeddingFailed indicates the hybrid search embedding pipeline failed.
	ErrCodeEmbeddingFailed ErrorCode = "EMBEDDING_FAILED"
	// ErrCodeImageGenerationFailed indicates the image provider failed.
	ErrCodeImageGenerationFailed ErrorCode = "IMAGE_GENERATION_FAILED"
	// ErrCodeConversationLoadFailed indicates the conversation could not be read.
	ErrCodeConversationLoadFailed ErrorCode = "CONVERSATION_LOAD_FAILED"
	// ErrCodePersistenceFailed indicates a message or conversation could not be saved.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeSafetyLogFailed indicates a blocked turn could not be recorded in the safety log.
	ErrCodeSafetyLogFailed ErrorCode = "SAFETY_LOG_FAILED"
	// ErrCodeHistoryPreparationFailed indicates the model history could not be built.
	ErrCodeHistoryPreparationFailed ErrorCode = "HISTORY_PREPARATION_FAILED"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeServiceUnavailable indicates the service is not available.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// ChatError is a structured, turn-fatal error.
type ChatError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Cause
}

// WithContext adds a key/value pair to the error.
func (e *ChatError) WithContext(key string, value any) *ChatError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Configuration creates a configuration error; msg is shown to the user as is.
func Configuration(msg string) *ChatError {
	return &ChatError{Code: ErrCodeConfiguration, Message: msg}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *ChatError {
	return &ChatError{Code: ErrCodeInvalidArgument, Message: msg}
}

// ServiceUnavailable creates a service unavailable error.
func ServiceUnavailable(msg string) *ChatError {
	return &ChatError{Code: ErrCodeServiceUnavailable, Message: msg}
}

// Wrap wraps cause with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *ChatError {
	return &ChatError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err is a ChatError with code.
func IsCode(err error, code ErrorCode) bool {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code, or returns defaultCode.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Code
	}
	return defaultCode
}

// HTTPStatus maps an error to the HTTP status the chat endpoint returns.
func HTTPStatus(err error) int {
	switch GetCodeFromError(err, "") {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
