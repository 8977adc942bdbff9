package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// FieldConfiguration is the stored configuration of one field context.
type FieldConfiguration struct {
	FieldID     string
	ContextID   string
	JQL         string
	DisplayName string
	UpdatedAt   time.Time
}

// FieldValue is the value of the field on one issue: the selected issue id,
// or "" when cleared.
type FieldValue struct {
	FieldID   string
	IssueKey  string
	Value     string
	UpdatedAt time.Time
}

// Job status values.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is a queued sync write. Jobs sharing a Type and a non-empty
// CoalesceKey replace each other while still pending.
type Job struct {
	ID          string
	Type        string
	CoalesceKey string
	PayloadJSON string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
