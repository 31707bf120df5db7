package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON Lines journal
//   - "sqlite": SQLite database file (build tag "sqlite")
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Keep bounds the retained records; 0 keeps everything.
	Keep int
}

// Record is one journal line. Keep it compact and schema-stable.
type Record struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	TaskID uint16    `json:"task_id,omitempty"`
	Task   string    `json:"task,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Detail string    `json:"detail,omitempty"`
}
