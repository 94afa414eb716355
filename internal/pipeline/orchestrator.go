// Package pipeline drives pending records through generation, validation,
// dataset writing and relocation, one record at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/tdgen/internal/dataset"
	"github.com/kalambet/tdgen/internal/events"
	"github.com/kalambet/tdgen/internal/generation"
	"github.com/kalambet/tdgen/internal/records"
)

// Generator produces a validated batch for a topic.
type Generator interface {
	Generate(ctx context.Context, recordID, topic string) ([]generation.Pair, error)
}

// Appender durably appends a batch to the dataset.
type Appender interface {
	Append(rows []dataset.Row) (int, error)
}

// Observer receives per-record results. Metrics implement it.
type Observer interface {
	ObserveRecord(outcome string, d time.Duration)
	ObserveRows(n int)
}

// Outcome is the result of handling one record.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Summary counts record outcomes.
type Summary struct {
	Processed int
	Failed    int
	Skipped   int
}

func (s *Summary) add(o Outcome) {
	switch o {
	case OutcomeProcessed:
		s.Processed++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
}

func (s *Summary) merge(other Summary) {
	s.Processed += other.Processed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

// Total is the number of records handled.
func (s Summary) Total() int { return s.Processed + s.Failed + s.Skipped }

// Orchestrator processes records sequentially. It is not safe for
// concurrent use.
type Orchestrator struct {
	source    *records.Source
	gen       Generator
	writer    Appender
	lifecycle *records.Lifecycle
	recorder  *events.Recorder
	observer  Observer
	logger    *slog.Logger

	pacing   time.Duration
	lastDone time.Time

	// attempted maps records this orchestrator has handled to their outcome.
	// Watch forgets failed entries between drains so they are retried.
	attempted map[string]Outcome
}

// New creates an Orchestrator that pauses for pacing after each record
// before picking the next one.
func New(src *records.Source, gen Generator, w Appender, lc *records.Lifecycle, rec *events.Recorder, pacing time.Duration) *Orchestrator {
	return &Orchestrator{
		source:    src,
		gen:       gen,
		writer:    w,
		lifecycle: lc,
		recorder:  rec,
		logger:    slog.Default(),
		pacing:    pacing,
		attempted: make(map[string]Outcome),
	}
}

// SetObserver installs a per-record observer.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

// Run drains the pending directory: it re-scans after every record and
// stops when no unattempted record is left or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		outcome, found, err := o.RunOnce(ctx)
		if err != nil {
			return sum, err
		}
		if !found {
			return sum, nil
		}
		sum.add(outcome)
	}
}

// Watch drains repeatedly, polling for new records every poll interval
// until ctx is cancelled.
func (o *Orchestrator) Watch(ctx context.Context, poll time.Duration) (Summary, error) {
	var total Summary
	for {
		sum, err := o.Run(ctx)
		total.merge(sum)
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		if err != nil {
			o.logger.Error("drain failed", "error", err)
		}
		if err := o.forget(); err != nil {
			o.logger.Error("scanning pending records", "error", err)
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// RunOnce handles the next unattempted pending record. found is false when
// there is none. Per-record failures are recorded, not returned; the error
// is reserved for listing failures and cancellation.
func (o *Orchestrator) RunOnce(ctx context.Context) (Outcome, bool, error) {
	if !o.lastDone.IsZero() {
		if err := sleepCtx(ctx, o.pacing-time.Since(o.lastDone)); err != nil {
			return "", false, err
		}
	}

	id, found, err := o.source.Next(func(id string) bool {
		_, seen := o.attempted[id]
		return seen
	})
	if err != nil {
		return "", false, fmt.Errorf("scanning pending records: %w", err)
	}
	if !found {
		return "", false, nil
	}
	o.attempted[id] = OutcomeFailed

	start := time.Now()
	outcome, err := o.process(ctx, id)
	o.lastDone = time.Now()
	if err != nil {
		return "", true, err
	}
	o.attempted[id] = outcome
	o.logger.Info("record handled", "record", id, "outcome", outcome, "elapsed", time.Since(start).Round(time.Millisecond))
	if o.observer != nil {
		o.observer.ObserveRecord(string(outcome), time.Since(start))
	}
	return outcome, true, nil
}

func (o *Orchestrator) process(ctx context.Context, id string) (Outcome, error) {
	o.recorder.Access(ctx, id, events.ComponentSource, "picked up")

	rec, err := o.source.Load(id)
	if err != nil {
		o.advance(ctx, rec, events.Tag(events.ComponentSource, err))
		return OutcomeSkipped, nil
	}

	pairs, err := o.gen.Generate(ctx, rec.ID, rec.Topic)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Interrupted mid-record: the file stays pending untouched.
		return "", ctxErr
	}
	if err != nil {
		o.advance(ctx, rec, err)
		return OutcomeFailed, nil
	}

	n, err := o.writer.Append(toRows(pairs))
	if err != nil {
		o.advance(ctx, rec, events.Tag(events.ComponentDataset, err))
		return OutcomeFailed, nil
	}
	o.recorder.Access(ctx, rec.ID, events.ComponentDataset, fmt.Sprintf("appended %d rows", n))
	if o.observer != nil {
		o.observer.ObserveRows(n)
	}

	if _, err := o.lifecycle.Advance(ctx, rec, nil); err != nil {
		o.logger.Warn("record written but not relocated", "record", rec.ID, "error", err)
		return OutcomeFailed, nil
	}
	return OutcomeProcessed, nil
}

func (o *Orchestrator) advance(ctx context.Context, rec records.Record, cause error) {
	level := slog.LevelWarn
	if errors.Is(cause, records.ErrMalformedRecord) {
		level = slog.LevelInfo
	}
	o.logger.Log(ctx, level, "record left pending", "record", rec.ID, "component", events.ComponentOf(cause, events.ComponentPipeline), "error", cause)
	if _, err := o.lifecycle.Advance(ctx, rec, cause); err != nil {
		o.logger.Error("recording failure", "record", rec.ID, "error", err)
	}
}

// forget drops failed records so the next drain retries them, and records
// that are no longer pending.
func (o *Orchestrator) forget() error {
	ids, err := o.source.List()
	if err != nil {
		return err
	}
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}
	for id, outcome := range o.attempted {
		if outcome == OutcomeFailed || !pending[id] {
			delete(o.attempted, id)
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toRows(pairs []generation.Pair) []dataset.Row {
	rows := make([]dataset.Row, len(pairs))
	for i, p := range pairs {
		rows[i] = dataset.Row{SearchQuery: p.SearchTerm, Classification: string(p.Classification)}
	}
	return rows
}
