package storage

import (
	"errors"
	"time"

	"github.com/kalambet/tdgen/internal/events"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunInterrupted = "interrupted"
)

// Run is one invocation of the pipeline.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Processed  int
	Failed     int
	Skipped    int
	Status     string
}

// EventFilter narrows ListEvents. Zero values match everything.
type EventFilter struct {
	Kind     events.Kind
	RecordID string
	Limit    int
}

// EventCount is the number of events per kind and component.
type EventCount struct {
	Kind      events.Kind
	Component string
	Count     int
}
