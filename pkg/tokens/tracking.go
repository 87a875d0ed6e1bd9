package tokens

import "fmt"

// WarningType classifies how close a session is to its token budget.
type WarningType string

const (
	WarningApproachingLimit WarningType = "approaching_limit"
	WarningAtLimit          WarningType = "at_limit"
	WarningOverLimit        WarningType = "over_limit"
)

// Warning describes a session token budget condition.
type Warning struct {
	Type            WarningType `json:"type"`
	Severity        string      `json:"severity"`
	Percentage      float64     `json:"percentage"`
	CurrentTokens   int         `json:"current_tokens"`
	LimitTokens     int         `json:"limit_tokens"`
	Message         string      `json:"message"`
	SuggestedAction string      `json:"suggested_action"`
}

// Tracker computes budget warnings for conversation sessions.
type Tracker struct {
	warnAtPercent float64
}

// NewTracker builds a tracker that warns once usage passes
// warnAtPercent of the limit.
func NewTracker(warnAtPercent float64) *Tracker {
	if warnAtPercent <= 0 || warnAtPercent >= 100 {
		warnAtPercent = 80
	}
	return &Tracker{warnAtPercent: warnAtPercent}
}

// CheckUsageWarning returns a warning when current usage approaches,
// reaches, or exceeds the limit, and nil while usage is comfortable.
func (t *Tracker) CheckUsageWarning(currentTokens, limitTokens int) *Warning {
	if limitTokens <= 0 {
		return nil
	}

	percentage := float64(currentTokens) / float64(limitTokens) * 100

	w := &Warning{
		Percentage:    percentage,
		CurrentTokens: currentTokens,
		LimitTokens:   limitTokens,
	}
	switch {
	case currentTokens > limitTokens:
		w.Type = WarningOverLimit
		w.Severity = "critical"
		w.Message = fmt.Sprintf("conversation exceeds its %d token budget", limitTokens)
		w.SuggestedAction = "start a new session"
	case currentTokens == limitTokens:
		w.Type = WarningAtLimit
		w.Severity = "critical"
		w.Message = fmt.Sprintf("conversation has reached its %d token budget", limitTokens)
		w.SuggestedAction = "start a new session or summarize"
	case percentage >= t.warnAtPercent:
		w.Type = WarningApproachingLimit
		w.Severity = "warning"
		w.Message = fmt.Sprintf("conversation is at %.0f%% of its %d token budget", percentage, limitTokens)
		w.SuggestedAction = "consider summarizing older turns"
	default:
		return nil
	}
	return w
}
