package reranking

import (
	"regexp"
	"strconv"
)

var (
	fractionPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*/\s*(\d+(?:\.\d+)?)`)
	labelPattern    = regexp.MustCompile(`(?i)(?:score|rating|relevance)\s*:?\s*(\d+(?:\.\d+)?)`)
	leadingPattern  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)
)

// parseScore extracts a judge score from an LLM response. Patterns are
// tried in order: "N/scale", "score|rating|relevance: N", leading N.
// The raw value is normalized by scale and clamped to [0,1]. The second
// return value is false when no pattern matches.
func parseScore(response string, scale float64) (float64, bool) {
	if scale <= 0 {
		scale = 10
	}

	if m := fractionPattern.FindStringSubmatch(response); m != nil {
		value, err1 := strconv.ParseFloat(m[1], 64)
		denom, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil && denom > 0 {
			return clamp01(value / denom), true
		}
	}

	if m := labelPattern.FindStringSubmatch(response); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp01(value / scale), true
		}
	}

	if m := leadingPattern.FindStringSubmatch(response); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp01(value / scale), true
		}
	}

	return 0, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
