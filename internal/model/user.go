// Package model defines data structures for the chat platform.
package model

import (
	"time"
)

// User represents a registered account. Profile management lives outside
// this service; only the fields the coordination layer reads are modeled.
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Name       string     `json:"name"`
	IsOnline   bool       `json:"is_online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
