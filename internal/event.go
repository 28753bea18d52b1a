package internal

// Notification is the record published for a worker with a publish target.
type Notification struct {
	Service    string `json:"service"`
	EventType  string `json:"event_type"`
	Repository string `json:"repository"`
	RequestID  string `json:"request_id,omitempty"`
	Message    string `json:"message"`
}
