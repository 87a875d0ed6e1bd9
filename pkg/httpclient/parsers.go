package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// ParseStandardHeaders extracts backoff hints from Retry-After and the
// x-ratelimit family used by OpenAI-compatible endpoints.
func ParseStandardHeaders(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}

	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			info.RetryAfter = time.Duration(seconds) * time.Second
		} else if t, err := http.ParseTime(retryAfter); err == nil {
			info.ResetTime = t.Unix()
		}
	}

	if remaining := headers.Get("x-ratelimit-remaining-requests"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.RequestsRemaining = n
		}
	}
	if remaining := headers.Get("x-ratelimit-remaining-tokens"); remaining != "" {
		if n, err := strconv.Atoi(remaining); err == nil {
			info.TokensRemaining = n
		}
	}

	return info
}
