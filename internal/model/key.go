package model

import "time"

// KeyStatus is the lifecycle state of an access key.
type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyRevoked KeyStatus = "revoked"
)

// Valid reports whether s is one of the known statuses.
func (s KeyStatus) Valid() bool {
	return s == KeyActive || s == KeyRevoked
}

// Key is a download access key. Keys are never deleted; revocation only flips
// Status. UsageCount and LastUsed change only on a successful download.
type Key struct {
	Key        string     `json:"key" db:"key"`
	Status     KeyStatus  `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsed   *time.Time `json:"last_used,omitempty" db:"last_used"`
	UsageCount int64      `json:"usage_count" db:"usage_count"`
}

// IsActive reports whether the key currently grants access.
func (k *Key) IsActive() bool {
	return k.Status == KeyActive
}

// KeyFilter narrows a key listing. Query is a case-insensitive substring of
// the key string; Status is ignored unless it is a valid KeyStatus.
type KeyFilter struct {
	Query  string
	Status KeyStatus
	Limit  int
}

// KeyStats holds the aggregate counters shown on the admin dashboard.
type KeyStats struct {
	Total     int64 `json:"total" db:"total"`
	Active    int64 `json:"active" db:"active"`
	Revoked   int64 `json:"revoked" db:"revoked"`
	Downloads int64 `json:"downloads" db:"downloads"`
}
