package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"github.com/arre-ops/arre_server/cmd/types"
)

// ErrUnparseable indicates the payload matched none of the recognized
// webhook formats.
var ErrUnparseable = errors.New("payload does not match any recognized alert format")

// maxPayloadSize caps accepted webhook bodies. Real alert payloads are well
// under 100KB.
const maxPayloadSize = 256 * 1024

// Normalizer converts raw webhook payloads into the canonical alert form.
// The source is derived from the payload structure, never from a
// caller-supplied field: callers cannot be trusted to set it, and
// deterministic matching needs an exact value.
type Normalizer struct{}

// NewNormalizer creates a new normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// TitleCase canonicalizes a source name: first letter upper, remainder
// lower. Trigger rules on tasks store sources in this form.
func TitleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Normalize detects the payload format and produces a NormalizedAlert.
// Detection is structural and ordered; the first matching format wins.
func (n *Normalizer) Normalize(raw []byte, receivedAt time.Time) (*types.NormalizedAlert, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnparseable)
	}
	if len(raw) > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload too large (%d bytes)", ErrUnparseable, len(raw))
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON: %v", ErrUnparseable, err)
	}

	var alert *types.NormalizedAlert
	var err error
	switch {
	case isGrafana(probe):
		alert, err = n.normalizeGrafana(raw)
	case isPagerduty(probe):
		alert, err = n.normalizePagerduty(raw)
	case isDatadog(probe):
		alert, err = n.normalizeDatadog(raw)
	case isCloudWatch(probe):
		alert, err = n.normalizeCloudWatch(raw)
	default:
		return nil, ErrUnparseable
	}
	if err != nil {
		return nil, err
	}

	// No lowercase or mixed-case source may survive normalization.
	if alert.Source != types.SourceCloudWatch {
		alert.Source = TitleCase(alert.Source)
	}
	if alert.Fingerprint == "" {
		alert.Fingerprint = Fingerprint(alert.Source, alert.AlertName, alert.Labels)
	}
	alert.RawPayload = raw
	alert.ReceivedAt = receivedAt

	log.Printf("[NORMALIZER] %s alert %q (status: %s, fingerprint: %s)",
		alert.Source, alert.AlertName, alert.Status, alert.Fingerprint)
	return alert, nil
}

func isGrafana(probe map[string]json.RawMessage) bool {
	alertsRaw, ok := probe["alerts"]
	if !ok {
		return false
	}
	var alerts []grafanaAlert
	if err := json.Unmarshal(alertsRaw, &alerts); err != nil || len(alerts) == 0 {
		return false
	}
	return alerts[0].Labels["alertname"] != ""
}

func isPagerduty(probe map[string]json.RawMessage) bool {
	eventTypeRaw, ok := probe["event_type"]
	if !ok {
		return false
	}
	var eventType string
	if json.Unmarshal(eventTypeRaw, &eventType) != nil {
		return false
	}
	_, hasIncident := probe["incident"]
	return strings.HasPrefix(eventType, "incident.") && hasIncident
}

func isDatadog(probe map[string]json.RawMessage) bool {
	_, hasAlertID := probe["alert_id"]
	_, hasMonitorID := probe["monitor_id"]
	_, hasTitle := probe["alert_title"]
	return (hasAlertID || hasMonitorID) && hasTitle
}

func isCloudWatch(probe map[string]json.RawMessage) bool {
	if _, direct := probe["AlarmName"]; direct {
		return true
	}
	var msgType string
	if probe["Type"] == nil || json.Unmarshal(probe["Type"], &msgType) != nil {
		return false
	}
	return msgType == "Notification" && probe["Message"] != nil
}

func (n *Normalizer) normalizeGrafana(raw []byte) (*types.NormalizedAlert, error) {
	var webhook grafanaWebhook
	if err := json.Unmarshal(raw, &webhook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if len(webhook.Alerts) == 0 {
		return nil, fmt.Errorf("%w: no alerts in payload", ErrUnparseable)
	}

	// Alertmanager groups alerts; routing operates on the first one.
	first := webhook.Alerts[0]
	status := first.Status
	if status == "" {
		status = webhook.Status
	}

	return &types.NormalizedAlert{
		Source:      types.SourceGrafana,
		AlertName:   first.Labels["alertname"],
		Status:      normalizeStatus(status),
		Severity:    normalizeSeverity(first.Labels["severity"]),
		Fingerprint: first.Fingerprint,
		Labels:      copyMap(first.Labels),
		Annotations: copyMap(first.Annotations),
		StartsAt:    first.StartsAt,
		EndsAt:      first.EndsAt,
	}, nil
}

func (n *Normalizer) normalizePagerduty(raw []byte) (*types.NormalizedAlert, error) {
	var webhook pagerdutyWebhook
	if err := json.Unmarshal(raw, &webhook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if webhook.Incident == nil || webhook.Incident.Title == "" {
		return nil, fmt.Errorf("%w: incident missing title", ErrUnparseable)
	}
	inc := webhook.Incident

	status := types.StatusFiring
	if inc.Status == "resolved" || webhook.EventType == "incident.resolve" {
		status = types.StatusResolved
	}

	severity := types.SeverityWarning
	if inc.Urgency == "high" {
		severity = types.SeverityCritical
	}

	labels := map[string]string{"incident_id": inc.ID, "urgency": inc.Urgency}
	if inc.Service != nil && inc.Service.Name != "" {
		labels["service"] = inc.Service.Name
	}

	return &types.NormalizedAlert{
		Source:      types.SourcePagerduty,
		AlertName:   inc.Title,
		Status:      status,
		Severity:    severity,
		Fingerprint: inc.ID,
		Labels:      labels,
		Annotations: map[string]string{"summary": inc.Title},
		StartsAt:    inc.CreatedAt,
	}, nil
}

func (n *Normalizer) normalizeDatadog(raw []byte) (*types.NormalizedAlert, error) {
	var webhook datadogWebhook
	if err := json.Unmarshal(raw, &webhook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	name := webhook.MonitorName
	if name == "" {
		name = webhook.AlertTitle
	}
	if name == "" {
		return nil, fmt.Errorf("%w: datadog event missing monitor name", ErrUnparseable)
	}

	status := types.StatusFiring
	if webhook.AlertStatus == "OK" || webhook.AlertStatus == "Recovered" {
		status = types.StatusResolved
	}

	severity := types.SeverityUnknown
	switch webhook.AlertStatus {
	case "Alert":
		severity = types.SeverityCritical
	case "Warn":
		severity = types.SeverityWarning
	case "OK", "Recovered", "No Data":
		severity = types.SeverityInfo
	}
	if webhook.Priority == "P1" {
		severity = types.SeverityCritical
	}

	labels := make(map[string]string, len(webhook.Tags))
	for _, tag := range webhook.Tags {
		if k, v, ok := strings.Cut(tag, ":"); ok {
			labels[k] = v
		} else {
			labels[tag] = ""
		}
	}

	annotations := map[string]string{}
	if webhook.AlertMessage != "" {
		annotations["description"] = webhook.AlertMessage
	}
	if webhook.AlertTitle != "" {
		annotations["summary"] = webhook.AlertTitle
	}

	var startsAt time.Time
	if webhook.Timestamp > 0 {
		startsAt = time.Unix(webhook.Timestamp, 0).UTC()
	}

	return &types.NormalizedAlert{
		Source:      types.SourceDatadog,
		AlertName:   name,
		Status:      status,
		Severity:    severity,
		Fingerprint: webhook.TransitionID,
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    startsAt,
	}, nil
}

func (n *Normalizer) normalizeCloudWatch(raw []byte) (*types.NormalizedAlert, error) {
	var alarm cloudwatchAlarm

	var envelope snsEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Type == "Notification" && envelope.Message != "" {
		if err := json.Unmarshal([]byte(envelope.Message), &alarm); err != nil {
			return nil, fmt.Errorf("%w: SNS message is not an alarm: %v", ErrUnparseable, err)
		}
	} else if err := json.Unmarshal(raw, &alarm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}

	if alarm.AlarmName == "" {
		return nil, fmt.Errorf("%w: missing AlarmName", ErrUnparseable)
	}

	status := types.StatusFiring
	if alarm.NewStateValue == "OK" {
		status = types.StatusResolved
	}

	labels := map[string]string{}
	if alarm.Region != "" {
		labels["region"] = alarm.Region
	}
	if alarm.AWSAccountID != "" {
		labels["aws_account"] = alarm.AWSAccountID
	}

	annotations := map[string]string{}
	if alarm.AlarmDescription != "" {
		annotations["description"] = alarm.AlarmDescription
	}
	if alarm.NewStateReason != "" {
		annotations["summary"] = alarm.NewStateReason
	}

	var startsAt time.Time
	if alarm.StateChangeTime != "" {
		// CloudWatch uses a non-RFC3339 offset format ("+0000")
		if t, err := time.Parse("2006-01-02T15:04:05.000-0700", alarm.StateChangeTime); err == nil {
			startsAt = t
		} else if t, err := time.Parse(time.RFC3339, alarm.StateChangeTime); err == nil {
			startsAt = t
		}
	}

	return &types.NormalizedAlert{
		Source:      types.SourceCloudWatch,
		AlertName:   alarm.AlarmName,
		Status:      status,
		Severity:    types.SeverityUnknown,
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    startsAt,
	}, nil
}

func normalizeStatus(s string) string {
	if strings.EqualFold(s, "resolved") {
		return types.StatusResolved
	}
	return types.StatusFiring
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(s) {
	case types.SeverityCritical:
		return types.SeverityCritical
	case types.SeverityWarning:
		return types.SeverityWarning
	case types.SeverityInfo:
		return types.SeverityInfo
	default:
		return types.SeverityUnknown
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
