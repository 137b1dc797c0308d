// Package proto defines the JSON documents shared between the server's state
// API, the Redis status publisher and external consumers.
package proto

import "time"

// Session states as published.
const (
	StateIdle       = "idle"
	StateConnecting = "connecting"
	StateStreaming  = "streaming"
)

// SourceStatus describes one configured source at a point in time.
type SourceStatus struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	Viewers      int       `json:"viewers"`
	Sessions     int64     `json:"sessions"`
	BytesRelayed int64     `json:"bytes_relayed"`
	UpdatedAt    time.Time `json:"updated_at"`
}
