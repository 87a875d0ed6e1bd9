package template

import "strings"

// injectionPatterns are removed from user-supplied text before it is
// interpolated into an LLM prompt.
var injectionPatterns = []string{
	"SYSTEM:", "System:", "system:",
	"ASSISTANT:", "Assistant:", "assistant:",
	"USER:", "User:", "user:",
	"Ignore previous instructions", "ignore previous instructions",
	"Ignore all previous", "ignore all previous",
	"Disregard previous", "disregard previous",
	"---", "===", "***",
	"```",
}

// Sanitize strips prompt-injection patterns from user input. Applied to
// queries and retrieved chunk text wherever either is interpolated into
// a prompt.
func Sanitize(input string) string {
	sanitized := input
	for _, pattern := range injectionPatterns {
		sanitized = strings.ReplaceAll(sanitized, pattern, "")
	}
	return strings.TrimSpace(sanitized)
}
