package types

import "time"

// Alert source names as derived by the normalizer. Matching against task
// trigger rules is exact, so these canonical forms are the only ones that
// may appear past ingestion.
const (
	SourceGrafana    = "Grafana"
	SourcePagerduty  = "Pagerduty"
	SourceDatadog    = "Datadog"
	SourceCloudWatch = "CloudWatch"
)

// Alert status values.
const (
	StatusFiring   = "firing"
	StatusResolved = "resolved"
)

// Severity values.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
	SeverityUnknown  = "unknown"
)

// NormalizedAlert is the canonical representation of an incoming webhook,
// produced by the normalizer and read-only afterwards. The original payload
// is preserved verbatim for audit. EndsAt stays the zero time while the
// alert is still firing.
type NormalizedAlert struct {
	Source      string            `json:"source"`
	AlertName   string            `json:"alert_name"`
	Status      string            `json:"status"`
	Severity    string            `json:"severity"`
	Fingerprint string            `json:"fingerprint"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"starts_at"`
	EndsAt      time.Time         `json:"ends_at"`
	RawPayload  []byte            `json:"-"`
	ReceivedAt  time.Time         `json:"received_at"`
}

// Summary returns the text used for vector queries and LLM prompts:
// alert name plus summary/description annotations, space joined.
func (a *NormalizedAlert) Summary() string {
	out := a.AlertName
	if s := a.Annotations["summary"]; s != "" {
		out += " " + s
	}
	if d := a.Annotations["description"]; d != "" {
		out += " " + d
	}
	return out
}

// TriggerKey identifies a deterministic trigger: exact (source, alert name).
type TriggerKey struct {
	Source    string `json:"source"`
	AlertName string `json:"alert_name"`
}

// Key returns the trigger key for this alert.
func (a *NormalizedAlert) Key() TriggerKey {
	return TriggerKey{Source: a.Source, AlertName: a.AlertName}
}
