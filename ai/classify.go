package ai

import (
	"errors"
	"strings"
)

// Code is a stable machine-readable classification of an upstream
// service error, suitable for user-facing error rendering.
type Code string

const (
	// CodeNone means the error is nil.
	CodeNone Code = ""
	// CodeNoAPIKey means no API key is configured for the upstream service.
	CodeNoAPIKey Code = "NO_API_KEY"
	// CodeInvalidAPIKey means the upstream service rejected the credentials.
	CodeInvalidAPIKey Code = "INVALID_API_KEY"
	// CodeQuotaExceeded means the upstream quota or rate limit was hit.
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	// CodeModelError means the model is unavailable or returned an error.
	CodeModelError Code = "MODEL_ERROR"
	// CodeNetworkError means the upstream service could not be reached.
	CodeNetworkError Code = "NETWORK_ERROR"
	// CodeUnknown is the fallback for unclassified errors.
	CodeUnknown Code = "UNKNOWN_ERROR"
)

// ErrNoAPIKey is returned when an API key is required but not configured.
var ErrNoAPIKey = errors.New("API key not configured")

// Classify derives an error Code from an upstream service error.
//
// The upstream services do not expose structured error codes, so
// classification matches substrings of the error message. This is a
// known-fragile heuristic; it is kept in this single function so it can
// be replaced if the services later expose structured codes.
func Classify(err error) Code {
	if err == nil {
		return CodeNone
	}
	if errors.Is(err, ErrNoAPIKey) {
		return CodeNoAPIKey
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "401"):
		return CodeInvalidAPIKey
	case strings.Contains(msg, "quota"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "429"):
		return CodeQuotaExceeded
	case strings.Contains(msg, "model"):
		return CodeModelError
	case strings.Contains(msg, "network"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return CodeNetworkError
	default:
		return CodeUnknown
	}
}
