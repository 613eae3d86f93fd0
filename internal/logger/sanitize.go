package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxIDLength is the maximum length for task, thread and message ids in logs
	MaxIDLength = 128
	// MaxDescriptionLength is the maximum length for task descriptions in logs
	MaxDescriptionLength = 200
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000
	// MaxDebugContentLength is the maximum length for debug content (prompts/responses)
	MaxDebugContentLength = 10000
)

// SanitizeString makes s safe to log: invalid UTF-8 and control characters other than
// whitespace are dropped, and the result is cut to maxLength bytes on a rune boundary
// with "..." appended. maxLength <= 0 means MaxGeneralStringLength.
func SanitizeString(s string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	clean := strings.Map(keepLoggable, strings.ToValidUTF8(s, ""))
	if len(clean) <= maxLength {
		return clean
	}
	return truncateRunes(clean, maxLength) + "..."
}

func keepLoggable(r rune) rune {
	switch r {
	case ' ', '\t', '\n', '\r':
		return r
	}
	if unicode.IsPrint(r) {
		return r
	}
	return -1
}

// truncateRunes cuts s to at most maxBytes without splitting a rune
func truncateRunes(s string, maxBytes int) string {
	cut := min(maxBytes, len(s))
	for cut > 0 && cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SanitizeError returns err's message sanitized for logs, or "" for nil.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeID sanitizes a task, thread or message id for safe logging
func SanitizeID(id string) string {
	return SanitizeString(id, MaxIDLength)
}

// SanitizeDescription creates a short, single-line preview of a task description
func SanitizeDescription(description string) string {
	description = strings.Join(strings.Fields(description), " ")
	return SanitizeString(description, MaxDescriptionLength)
}

// SanitizeDebugContent bounds classifier prompts and responses logged in debug mode.
func SanitizeDebugContent(content string) string {
	return SanitizeString(content, MaxDebugContentLength)
}
