package ingest

import "time"

// Wire shapes for the recognized webhook formats. Only the fields the
// normalizer consumes are declared; the raw payload is preserved separately.

// grafanaWebhook covers Grafana and Prometheus Alertmanager payloads, which
// share the alerts[] envelope.
type grafanaWebhook struct {
	Status string         `json:"status"`
	Alerts []grafanaAlert `json:"alerts"`
}

type grafanaAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// pagerdutyWebhook is the PagerDuty v2 webhook envelope.
type pagerdutyWebhook struct {
	EventType string             `json:"event_type"`
	Incident  *pagerdutyIncident `json:"incident"`
}

type pagerdutyIncident struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Status    string            `json:"status"`
	Urgency   string            `json:"urgency"`
	CreatedAt time.Time         `json:"created_at"`
	Service   *pagerdutyService `json:"service"`
}

type pagerdutyService struct {
	Name string `json:"name"`
}

// datadogWebhook is the Datadog monitor webhook event envelope.
type datadogWebhook struct {
	AlertID      int64    `json:"alert_id"`
	AlertTitle   string   `json:"alert_title"`
	AlertStatus  string   `json:"alert_status"`
	AlertMessage string   `json:"alert_message"`
	MonitorID    int64    `json:"monitor_id"`
	MonitorName  string   `json:"monitor_name"`
	EventType    string   `json:"event_type"`
	Priority     string   `json:"priority"`
	Tags         []string `json:"tags"`
	TransitionID string   `json:"transition_id"`
	Timestamp    int64    `json:"timestamp"`
}

// snsEnvelope is the CloudWatch alarm notification delivered through SNS.
// Message carries the alarm JSON as a string.
type snsEnvelope struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicArn  string `json:"TopicArn"`
	Message   string `json:"Message"`
}

// cloudwatchAlarm is the alarm body, either inside an SNS envelope or
// posted directly.
type cloudwatchAlarm struct {
	AlarmName        string `json:"AlarmName"`
	AlarmDescription string `json:"AlarmDescription"`
	NewStateValue    string `json:"NewStateValue"`
	NewStateReason   string `json:"NewStateReason"`
	Region           string `json:"Region"`
	AWSAccountID     string `json:"AWSAccountId"`
	StateChangeTime  string `json:"StateChangeTime"`
}
