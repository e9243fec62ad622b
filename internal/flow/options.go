package flow

import (
	"context"
	"time"

	"github.com/googleapis/gax-go/v2"
)

// DefaultSubmitBackoff paces resubmission while a queue reports it is full.
var DefaultSubmitBackoff = gax.Backoff{
	Initial:    10 * time.Millisecond,
	Max:        time.Second,
	Multiplier: 2,
}

type settings struct {
	ctx     context.Context
	backoff gax.Backoff
}

// Option configures a Flow.
type Option func(*settings)

// WithContext sets the parent context of the flow. Submissions and ForEach
// calls stop once it is canceled.
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithSubmitBackoff overrides DefaultSubmitBackoff.
func WithSubmitBackoff(b gax.Backoff) Option {
	return func(s *settings) {
		s.backoff = b
	}
}
