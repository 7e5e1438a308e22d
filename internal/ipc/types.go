package ipc

import "time"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// ListenerStatus describes one receiver process.
type ListenerStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Pid     int    `json:"pid,omitempty"`
}

// RouteStatus describes one route worker's progress.
type RouteStatus struct {
	Route     string    `json:"route"`
	Inbox     string    `json:"inbox"`
	Endpoints []string  `json:"endpoints"`
	Cycles    int       `json:"cycles"`
	Relayed   int       `json:"relayed"`
	Failed    int       `json:"failed"`
	LastScan  time.Time `json:"last_scan"`
}

// DependencyStatus describes availability of an external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StatusResponse represents combined daemon and relay status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	LockPath     string             `json:"lock_path"`
	JournalPath  string             `json:"journal_path,omitempty"`
	JournalStats map[string]int     `json:"journal_stats,omitempty"`
	Listeners    []ListenerStatus   `json:"listeners"`
	Routes       []RouteStatus      `json:"routes"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HistoryRequest filters persisted delivery outcomes.
type HistoryRequest struct {
	Route   string `json:"route,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// DeliveryRecord is one journal entry.
type DeliveryRecord struct {
	ID         int64     `json:"id"`
	At         time.Time `json:"at"`
	Route      string    `json:"route"`
	BatchID    string    `json:"batch_id"`
	File       string    `json:"file"`
	Endpoint   string    `json:"endpoint"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// HistoryResponse contains delivery records, newest first.
type HistoryResponse struct {
	Entries []DeliveryRecord `json:"entries"`
}

// PingRequest probes every configured endpoint.
type PingRequest struct{}

// EndpointResult reports one endpoint probe.
type EndpointResult struct {
	Endpoint  string `json:"endpoint"`
	Reachable bool   `json:"reachable"`
	Detail    string `json:"detail,omitempty"`
}

// PingResponse contains endpoint probe results.
type PingResponse struct {
	Results []EndpointResult `json:"results"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification attempt.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// StopRequest stops the relay and lets the daemon process exit.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message,omitempty"`
}
