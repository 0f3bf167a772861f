package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Report is a locally logged issue report.
type Report struct {
	ID          string
	CreatedAt   time.Time
	Type        string
	Location    string
	Description string
	Urgency     string
	Attachments string // JSON array stored as text
}
