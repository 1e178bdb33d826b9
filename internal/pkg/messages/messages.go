package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "WHISPERS/"
	// Work queue name
	Work = st + "Work"
)

const (
	// TypeTransform job type for transformation generation
	TypeTransform = "transform"
)

// TransformMessage asks worker to generate a transformation for a whisper.
// QueueMessage.ID is the ID of the transformation record
type TransformMessage struct {
	amessages.QueueMessage
	WhisperID string `json:"whisperID"`
	UserID    string `json:"userID"`
	Type      string `json:"type"`
	// Day is the usage day the transformation unit was taken from, format 2006-01-02.
	// Empty if no unit was taken
	Day string `json:"day,omitempty"`
}

// Opts keeps gue job options
type Opts struct {
	Queue string
	Type  string
}

// DefaultOpts returns options for a job type in the work queue
func DefaultOpts(jobType string) *Opts {
	return &Opts{Queue: Work, Type: jobType}
}

