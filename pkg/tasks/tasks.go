// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// CrowdEscalationTask represents a low-confidence resolution that needs community help.
type CrowdEscalationTask struct {
	EventID  string `json:"event_id"`
	ThreadID uint   `json:"thread_id"`
	UserID   uint   `json:"user_id"`
	Prompt   string `json:"prompt"`
	MediaURL string `json:"media_url,omitempty"`
}
