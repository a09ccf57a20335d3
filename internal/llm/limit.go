package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited throttles calls to the wrapped Completer.
type Limited struct {
	next    Completer
	limiter *rate.Limiter
}

// NewLimited allows perSecond calls per second with the given burst. A
// non-positive perSecond disables limiting.
func NewLimited(next Completer, perSecond float64, burst int) *Limited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Complete waits for a token, honoring ctx, then calls the wrapped Completer.
// A wait that cannot finish before the deadline of ctx fails as
// context.DeadlineExceeded.
func (l *Limited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if _, ok := ctx.Deadline(); ok {
			return "", fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return "", err
	}
	return l.next.Complete(ctx, prompt)
}
