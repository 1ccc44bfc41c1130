package models

import (
	"encoding/json"
	"time"
)

// CacheState distinguishes a claimed fingerprint from a published one.
type CacheState string

const (
	CacheInProgress CacheState = "in_progress"
	CacheComplete   CacheState = "complete"
)

// CacheEntry is the stored form of a cached computation.
type CacheEntry struct {
	Fingerprint string          `json:"fingerprint"`
	State       CacheState      `json:"state"`
	Owner       string          `json:"owner,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
