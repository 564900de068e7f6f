// Package quality estimates how useful a rule's nudges have been to a user
// and proposes severity dampening when they mostly get dismissed.
package quality

import "github.com/nhle/coordination/internal/model"

// Defaults used by the notification gate.
const (
	DefaultDismissalRateThreshold = 0.45
	DefaultMinSamples             = 10
)

// Metrics summarizes a (user, rule) outcome history.
type Metrics struct {
	ResolvedCount  int     `json:"resolved_count"`
	DismissedCount int     `json:"dismissed_count"`
	SampleSize     int     `json:"sample_size"`
	ResolvedRate   float64 `json:"resolved_rate"`
	DismissedRate  float64 `json:"dismissed_rate"`
}

// CalculateNudgeQualityMetrics computes outcome rates. With no history the
// rule is assumed perfect: everything resolved, nothing dismissed.
func CalculateNudgeQualityMetrics(resolvedCount, dismissedCount int) Metrics {
	if resolvedCount < 0 {
		resolvedCount = 0
	}
	if dismissedCount < 0 {
		dismissedCount = 0
	}

	m := Metrics{
		ResolvedCount:  resolvedCount,
		DismissedCount: dismissedCount,
		SampleSize:     resolvedCount + dismissedCount,
	}
	if m.SampleSize == 0 {
		m.ResolvedRate = 1
		return m
	}

	m.DismissedRate = float64(dismissedCount) / float64(m.SampleSize)
	m.ResolvedRate = float64(resolvedCount) / float64(m.SampleSize)
	return m
}

// MaybeAdjustSeverityForDismissalRate lowers severity one step when the
// dismissed rate exceeds threshold.
func MaybeAdjustSeverityForDismissalRate(severity model.Severity, dismissedRate, threshold float64) model.Severity {
	if dismissedRate > threshold {
		return severity.Lower()
	}
	return severity
}

// Policy decides when a history is large enough to act on.
type Policy struct {
	MinSamples             int
	DismissalRateThreshold float64
}

// DefaultPolicy returns the gate's default dampening policy.
func DefaultPolicy() Policy {
	return Policy{
		MinSamples:             DefaultMinSamples,
		DismissalRateThreshold: DefaultDismissalRateThreshold,
	}
}

// Estimate is the outcome of applying a Policy to a history.
type Estimate struct {
	Metrics          Metrics        `json:"metrics"`
	OriginalSeverity model.Severity `json:"original_severity"`
	Severity         model.Severity `json:"severity"`
	Dampened         bool           `json:"dampened"`
}

// Apply computes metrics and the possibly dampened severity. Histories below
// MinSamples never change severity.
func (p Policy) Apply(severity model.Severity, resolvedCount, dismissedCount int) Estimate {
	m := CalculateNudgeQualityMetrics(resolvedCount, dismissedCount)
	est := Estimate{Metrics: m, OriginalSeverity: severity, Severity: severity}
	if m.SampleSize < p.MinSamples {
		return est
	}
	est.Severity = MaybeAdjustSeverityForDismissalRate(severity, m.DismissedRate, p.DismissalRateThreshold)
	est.Dampened = est.Severity != severity
	return est
}
