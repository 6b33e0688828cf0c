package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// CommandMetadata is immutable identity carried by a command's
// CommandContext for the lifetime of one invocation: a unique ID, an
// optional user and correlation ID, and the creation timestamp.
type CommandMetadata struct {
	ID            uuid.UUID
	UserID        string
	CorrelationID string
	Timestamp     time.Time
}

// HasUserID reports whether UserID was set.
func (m CommandMetadata) HasUserID() bool { return m.UserID != "" }

// HasCorrelationID reports whether CorrelationID was set.
func (m CommandMetadata) HasCorrelationID() bool { return m.CorrelationID != "" }

// NewMetadata builds CommandMetadata with a fresh ID and the current
// timestamp. UserID and CorrelationID default to empty and may be set via
// the With* helpers before the metadata is handed to a CommandContext.
func NewMetadata() CommandMetadata {
	return CommandMetadata{
		ID:        uuid.New(),
		Timestamp: time.Now(),
	}
}

// WithUserID returns a copy of m with UserID set.
func (m CommandMetadata) WithUserID(userID string) CommandMetadata {
	m.UserID = userID
	return m
}

// WithCorrelationID returns a copy of m with CorrelationID set.
func (m CommandMetadata) WithCorrelationID(correlationID string) CommandMetadata {
	m.CorrelationID = correlationID
	return m
}
