package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// throttled caps how many requests reach the wrapped engine per minute,
// retries included.
type throttled struct {
	Engine
	limiter *rate.Limiter
}

// Throttle wraps e so that at most perMinute requests start in any minute.
// perMinute <= 0 returns e unchanged.
func Throttle(e Engine, perMinute int) Engine {
	if perMinute <= 0 {
		return e
	}
	return &throttled{
		Engine:  e,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

func (t *throttled) Chat(ctx context.Context, req Request) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.Engine.Chat(ctx, req)
}
