package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/tdgen/internal/engine"
	"github.com/kalambet/tdgen/internal/events"
)

// ErrExhausted is returned when every attempt in the retry budget failed.
var ErrExhausted = errors.New("generation retries exhausted")

// Policy is a bounded retry with a fixed delay between attempts.
// One invocation issues at most MaxRetries+1 service calls.
type Policy struct {
	MaxRetries int
	Backoff    time.Duration
}

// Outcome classifies a single service call.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeExhausted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Observer receives per-attempt outcomes. Metrics implement it.
type Observer interface {
	ObserveAttempt(Outcome)
	ObserveEscalation()
}

// Generator turns a topic into a validated batch of pairs.
type Generator struct {
	engine   engine.Engine
	params   Params
	policy   Policy
	recorder *events.Recorder
	observer Observer
	sleep    func(context.Context, time.Duration) error
}

// New creates a Generator. rec may be nil.
func New(e engine.Engine, params Params, policy Policy, rec *events.Recorder) *Generator {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Generator{
		engine:   e,
		params:   params,
		policy:   policy,
		recorder: rec,
		sleep:    sleepCtx,
	}
}

// SetObserver installs an attempt observer.
func (g *Generator) SetObserver(o Observer) {
	g.observer = o
}

// Generate requests a batch for topic. A reply that fails validation gets
// exactly one full regeneration with a fresh retry budget; if that reply is
// also malformed the batch is nil and the error wraps ErrMalformedResponse.
// Returned errors are tagged with the component that failed.
func (g *Generator) Generate(ctx context.Context, recordID, topic string) ([]Pair, error) {
	raw, err := g.request(ctx, recordID, topic)
	if err != nil {
		return nil, err
	}
	pairs, err := Parse(raw)
	if err == nil {
		return pairs, nil
	}

	slog.Warn("malformed reply, regenerating", "record", recordID, "error", err)
	g.recorder.Failure(ctx, recordID, events.ComponentValidator, "malformed response, regenerating", err)
	if g.observer != nil {
		g.observer.ObserveEscalation()
	}

	raw, err = g.request(ctx, recordID, topic)
	if err != nil {
		return nil, err
	}
	pairs, err = Parse(raw)
	if err != nil {
		return nil, events.Tag(events.ComponentValidator, fmt.Errorf("after regeneration: %w", err))
	}
	return pairs, nil
}

// request runs the retry loop for a single logical request.
func (g *Generator) request(ctx context.Context, recordID, topic string) (string, error) {
	total := g.policy.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		g.recorder.Access(ctx, recordID, events.ComponentGeneration,
			fmt.Sprintf("attempt %d/%d via %s", attempt, total, g.engine.Name()))

		raw, err := g.engine.Chat(ctx, BuildRequest(g.params, topic))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", events.Tag(events.ComponentGeneration, ctxErr)
		}

		outcome := classify(err, attempt, total)
		if g.observer != nil {
			g.observer.ObserveAttempt(outcome)
		}

		switch outcome {
		case OutcomeSuccess:
			return raw, nil
		case OutcomeExhausted:
			return "", events.Tag(events.ComponentGeneration,
				fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err))
		}

		slog.Warn("generation attempt failed, retrying",
			"record", recordID, "attempt", attempt, "of", total, "backoff", g.policy.Backoff, "error", err)
		if err := g.sleep(ctx, g.policy.Backoff); err != nil {
			return "", events.Tag(events.ComponentGeneration, err)
		}
	}
}

func classify(err error, attempt, total int) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case attempt >= total:
		return OutcomeExhausted
	default:
		return OutcomeRetryable
	}
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
