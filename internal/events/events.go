// Package events records what the pipeline did to each input record. Every
// event carries the same schema (time, run, record, component, kind, outcome,
// cause) so failure analysis never depends on parsing free-form text.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind separates the two append-only streams.
type Kind string

const (
	KindAccess  Kind = "access"
	KindFailure Kind = "failure"
)

// Component names the pipeline stage that emitted an event.
const (
	ComponentSource     = "source"
	ComponentGeneration = "generation"
	ComponentValidator  = "validator"
	ComponentDataset    = "dataset"
	ComponentLifecycle  = "lifecycle"
	ComponentPipeline   = "pipeline"
)

// Event is one entry in the access or failure stream.
type Event struct {
	ID        string
	RunID     string
	Time      time.Time
	RecordID  string
	Component string
	Kind      Kind
	Outcome   string
	Cause     string
}

// Sink persists events. Implementations must be append-only.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Recorder stamps events with an ID, run ID and time before handing them to
// a Sink. Sink errors are logged and swallowed: losing an audit line must
// never abort processing.
type Recorder struct {
	sink  Sink
	runID string
	now   func() time.Time
}

// NewRecorder creates a Recorder for one pipeline run.
func NewRecorder(sink Sink, runID string) *Recorder {
	if sink == nil {
		sink = Discard
	}
	return &Recorder{sink: sink, runID: runID, now: time.Now}
}

// RunID returns the run this recorder stamps on events.
func (r *Recorder) RunID() string { return r.runID }

// Access records that component touched recordID.
func (r *Recorder) Access(ctx context.Context, recordID, component, outcome string) {
	r.emit(ctx, Event{
		RecordID:  recordID,
		Component: component,
		Kind:      KindAccess,
		Outcome:   outcome,
	})
}

// Failure records a failure of component while handling recordID.
func (r *Recorder) Failure(ctx context.Context, recordID, component, outcome string, cause error) {
	ev := Event{
		RecordID:  recordID,
		Component: component,
		Kind:      KindFailure,
		Outcome:   outcome,
	}
	if cause != nil {
		ev.Cause = cause.Error()
	}
	r.emit(ctx, ev)
}

func (r *Recorder) emit(ctx context.Context, ev Event) {
	if r == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.RunID = r.runID
	ev.Time = r.now().UTC()
	if err := r.sink.Record(ctx, ev); err != nil {
		slog.Warn("event sink failed", "record", ev.RecordID, "component", ev.Component, "kind", ev.Kind, "error", err)
	}
}

// Failure tags an error with the component that produced it.
type Failure struct {
	Component string
	Err       error
}

func (f *Failure) Error() string {
	return f.Component + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Tag wraps err so ComponentOf can recover the originating component.
// A nil err stays nil.
func Tag(component string, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Component: component, Err: err}
}

// ComponentOf returns the component err was tagged with, or fallback.
func ComponentOf(err error, fallback string) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Component
	}
	return fallback
}

// Multi fans an event out to every sink, returning the joined errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discard struct{}

func (discard) Record(context.Context, Event) error { return nil }

// Discard drops every event.
var Discard Sink = discard{}
