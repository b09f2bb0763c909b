package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Linear waits Step, 2*Step, 3*Step and so on between attempts.
type Linear struct {
	Step time.Duration
	n    int64
}

func (l *Linear) NextBackOff() time.Duration {
	l.n++
	return l.Step * time.Duration(l.n)
}

func (l *Linear) Reset() {
	l.n = 0
}

// Policy allows attempts tries in total with a linear pause between them
// and gives up as soon as ctx is done.
func Policy(ctx context.Context, step time.Duration, attempts int) backoff.BackOffContext {
	if attempts < 1 {
		attempts = 1
	}
	if step < 0 {
		step = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(&Linear{Step: step}, uint64(attempts-1)), ctx)
}
