package ai

import (
	"context"

	"github.com/benvon/smart-tasks/internal/logger"
)

// Context key types for logging (to avoid collisions with string keys)
type contextKey string

const (
	threadIDContextKey  contextKey = "thread_id"
	messageIDContextKey contextKey = "message_id"
	requestIDContextKey contextKey = "request_id"
)

const (
	// MaxPreviewLength is the maximum length for preview strings in logs
	MaxPreviewLength = 200
	// RedactedValue is the value used to replace sensitive data
	RedactedValue = "[REDACTED]"
)

// WithThreadID attaches the thread being processed to ctx for classifier logs
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDContextKey, threadID)
}

// WithMessageID attaches the message being processed to ctx for classifier logs
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDContextKey, messageID)
}

// WithRequestID attaches a correlation id (usually the job id) to ctx
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, requestID)
}

// ExtractThreadID returns the thread id stored in ctx, if any
func ExtractThreadID(ctx context.Context) string {
	return stringValue(ctx, threadIDContextKey)
}

// ExtractMessageID returns the message id stored in ctx, if any
func ExtractMessageID(ctx context.Context) string {
	return stringValue(ctx, messageIDContextKey)
}

// ExtractRequestID returns the request id stored in ctx, if any
func ExtractRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDContextKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// SanitizeAPIKey sanitizes an API key for logging
func SanitizeAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 8 {
		return RedactedValue
	}
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// SanitizePrompt creates a safe preview of a prompt for logging
func SanitizePrompt(prompt string, fullLog bool) string {
	if fullLog {
		return logger.SanitizeDebugContent(prompt)
	}
	return logger.SanitizeString(prompt, MaxPreviewLength)
}

// SanitizeResponse creates a safe preview of a response for logging
func SanitizeResponse(response string, fullLog bool) string {
	if fullLog {
		return logger.SanitizeDebugContent(response)
	}
	return logger.SanitizeString(response, MaxPreviewLength)
}
