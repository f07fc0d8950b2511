package circuitbreaker

import (
	"context"

	"github.com/clubmatch/clubmatch/internal/mailer"
	"github.com/clubmatch/clubmatch/internal/template"
)

// ProtectedClient wraps a mail transport with a circuit breaker. Rejected
// sends surface as ErrOpen, which the retry engine counts against the
// retry budget like any other transport failure.
type ProtectedClient struct {
	inner   mailer.Client
	breaker *Breaker
}

func NewProtectedClient(inner mailer.Client, breaker *Breaker) *ProtectedClient {
	return &ProtectedClient{
		inner:   inner,
		breaker: breaker,
	}
}

func (c *ProtectedClient) Send(ctx context.Context, to string, msg *template.Message) (*mailer.Result, error) {
	if !c.breaker.Allow() {
		return nil, ErrOpen
	}

	result, err := c.inner.Send(ctx, to, msg)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}

	c.breaker.RecordSuccess()
	return result, nil
}
