package models

import (
	"time"

	"github.com/pollyhq/ratekeeper/pkg/constants"
)

// Violation is a persisted record of one rejected request. It backs the
// admin stats endpoint and the optional Kafka throttle-event stream.
type Violation struct {
	ID        string              `gorm:"primaryKey;size:36" json:"id"`
	Identity  string              `gorm:"size:128;index" json:"identity"`
	IP        string              `gorm:"size:64;index" json:"ip"`
	Operation string              `gorm:"size:32;index" json:"operation"`
	Type      constants.LimitType `gorm:"size:16" json:"type"`
	Limit     int                 `json:"limit"`
	BlockedAt time.Time           `gorm:"index" json:"blockedAt"`
}

// TableName sets the violations table name for GORM.
func (Violation) TableName() string { return "rate_limit_violations" }

// BlockedSummary aggregates violations for one IP and operation.
type BlockedSummary struct {
	IP        string `json:"ip"`
	Operation string `json:"operation"`
	Count     int64  `json:"count"`
}

// ViolationStats is the aggregate view served by the admin stats endpoint.
type ViolationStats struct {
	BlockedRequests int64            `json:"blockedRequests"`
	UniqueIPs       int64            `json:"uniqueIPs"`
	TopBlocked      []BlockedSummary `json:"topBlocked"`
	RecentActivity  []Violation      `json:"recentActivity"`
}

// Identity is the resolved client identity for a request. The same inputs
// always produce the same Key within a process lifetime.
type Identity struct {
	// IP is the resolved client address, used alone for burst protection.
	IP string

	// Key is the full identity string used for per-rule counters:
	// "user:<uid>:<ip>" for authenticated clients, "ip:<ip>:<h>" with a
	// truncated UA fingerprint otherwise.
	Key string

	// UserID is set when the request carried an authenticated user.
	UserID string
}
