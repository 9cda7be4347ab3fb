package router

import "time"

// Target names one provider/model pair to try.
type Target struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// AttemptPolicy is the generation retry contract: one primary attempt and
// at most one fallback attempt. The fallback re-issues the full request;
// nothing carries over from the failed attempt.
type AttemptPolicy struct {
	Primary  Target
	Fallback *Target

	// Timeout bounds each attempt separately. Zero means no per-attempt
	// deadline beyond the caller's context.
	Timeout time.Duration
}

// Attempts returns the ordered targets for a request. A model override
// replaces the primary model only; the fallback keeps its own model. A
// fallback identical to the primary is dropped.
func (p AttemptPolicy) Attempts(modelOverride string) []Target {
	primary := p.Primary
	if modelOverride != "" {
		primary.Model = modelOverride
	}
	out := []Target{primary}
	if p.Fallback != nil && *p.Fallback != primary {
		out = append(out, *p.Fallback)
	}
	return out
}
