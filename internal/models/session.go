package models

import "time"

// EditorSession tracks one connected administrator. Rank is derived from
// ConnectedAt ordering over the unexpired sessions at read time; it is never
// stored, which keeps rank assignment race-free across processes.
type EditorSession struct {
	ID              string    `json:"id"`
	AdminID         string    `json:"admin_id"`
	Rank            int       `json:"rank"`
	View            string    `json:"view"`
	EditingEntityID *string   `json:"editing_entity_id,omitempty"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
}

// Expired reports whether the session's last heartbeat is older than the
// timeout at the provided instant.
func (s *EditorSession) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastHeartbeat) > timeout
}
