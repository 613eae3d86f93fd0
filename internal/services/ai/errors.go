package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrRateLimited indicates the API rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")
	// ErrQuotaExceeded indicates the API quota was exceeded
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrClassifierUnavailable indicates no classifier can serve the request at all
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrMalformedResponse indicates the classifier answered with something we could not parse
	ErrMalformedResponse = errors.New("malformed classifier response")
	// ErrOfflineMode is returned by the offline classifier for every model-backed operation
	ErrOfflineMode = errors.New("classifier running in offline mode")
)

// APIError represents an error from the AI provider API
type APIError struct {
	Message     string
	Type        string
	Code        string
	StatusCode  int
	RetryAfter  *time.Duration
	IsPermanent bool // quota exhaustion rather than a transient rate limit
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 && !apiErr.IsPermanent
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// IsQuotaError checks if an error is a quota exhaustion error
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsPermanent || apiErr.Code == "insufficient_quota"
	}

	errStr := err.Error()
	return strings.Contains(errStr, "insufficient_quota") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing")
}

// IsUnavailable reports whether err means the classifier cannot be used for the rest of a run.
// Unavailability is not recoverable per call: callers stop asking and degrade the whole pass.
// Context errors are not classified here; a per-call timeout is transient, and callers
// detect their own cancellation through ctx.Err().
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClassifierUnavailable) {
		return true
	}
	var notFound *ErrProviderNotFound
	if errors.As(err, &notFound) {
		return true
	}
	return IsQuotaError(err)
}

// providerErrorBody is the JSON error object the SDK embeds in its error text
type providerErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// embeddedErrorBody returns the outermost {...} span of msg decoded as a provider error.
func embeddedErrorBody(msg string) (providerErrorBody, bool) {
	var body providerErrorBody
	open, end := strings.Index(msg, "{"), strings.LastIndex(msg, "}")
	if open < 0 || end < open {
		return body, false
	}
	if err := json.Unmarshal([]byte(msg[open:end+1]), &body); err != nil {
		return body, false
	}
	return body, true
}

// ExtractAPIError parses a 429 response out of an SDK error. Other errors yield nil.
func ExtractAPIError(err error) *APIError {
	if err == nil || !strings.Contains(err.Error(), "429") {
		return nil
	}

	msg := err.Error()
	apiErr := &APIError{StatusCode: 429, Message: msg, Type: "rate_limit_error"}
	if body, ok := embeddedErrorBody(msg); ok {
		apiErr.Message, apiErr.Type, apiErr.Code = body.Message, body.Type, body.Code
		apiErr.IsPermanent = body.Code == "insufficient_quota"
	}

	wait := time.Minute
	if apiErr.IsPermanent {
		wait = time.Hour
	}
	apiErr.RetryAfter = &wait
	return apiErr
}

// backoff is an exponential schedule starting at base and never exceeding limit
type backoff struct {
	base, limit time.Duration
}

var (
	quotaBackoff     = backoff{base: time.Hour, limit: 24 * time.Hour}
	rateLimitBackoff = backoff{base: time.Minute, limit: 15 * time.Minute}
	transientBackoff = backoff{base: 5 * time.Second, limit: 5 * time.Minute}
)

func (b backoff) at(attempt int) time.Duration {
	attempt = max(0, min(attempt, 10))
	if d := b.base << attempt; d < b.limit {
		return d
	}
	return b.limit
}

// GetRetryDelay returns how long a failed job waits before its next attempt.
// Quota exhaustion backs off in hours, rate limits in minutes, anything else in seconds.
func GetRetryDelay(err error, attempt int) time.Duration {
	switch {
	case IsQuotaError(err):
		return quotaBackoff.at(attempt)
	case IsRateLimitError(err):
		delay := rateLimitBackoff.at(attempt)
		if apiErr := ExtractAPIError(err); apiErr != nil && apiErr.RetryAfter != nil {
			delay = max(delay, *apiErr.RetryAfter)
		}
		return delay
	default:
		return transientBackoff.at(attempt)
	}
}
