package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEngine struct {
	calls []time.Time
}

func (c *countingEngine) Chat(context.Context, Request) (string, error) {
	c.calls = append(c.calls, time.Now())
	return "ok", nil
}

func (c *countingEngine) Name() string { return "counting" }

func TestThrottle_ZeroIsPassThrough(t *testing.T) {
	inner := &countingEngine{}
	if got := Throttle(inner, 0); got != Engine(inner) {
		t.Error("Throttle(e, 0) should return e unchanged")
	}
}

func TestThrottle_SpacesRequests(t *testing.T) {
	inner := &countingEngine{}
	// 1200/min is one request every 50ms.
	e := Throttle(inner, 1200)
	if e.Name() != "counting" {
		t.Errorf("Name = %q, want the wrapped engine's name", e.Name())
	}

	for i := 0; i < 3; i++ {
		if _, err := e.Chat(context.Background(), Request{}); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	for i := 1; i < len(inner.calls); i++ {
		if gap := inner.calls[i].Sub(inner.calls[i-1]); gap < 40*time.Millisecond {
			t.Errorf("gap %d = %v, want ~50ms", i, gap)
		}
	}
}

func TestThrottle_HonorsContext(t *testing.T) {
	inner := &countingEngine{}
	e := Throttle(inner, 1)
	e.Chat(context.Background(), Request{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Chat(ctx, Request{})
	if err == nil {
		t.Fatal("expected the wait to fail under a short deadline")
	}
	if len(inner.calls) != 1 {
		t.Errorf("inner calls = %d, want 1", len(inner.calls))
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want a deadline error", err)
	}
}
