package pasugo

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits attempt*base before each retry.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// reconnectPolicy bounds the linear backoff to max attempts.
type reconnectPolicy struct {
	linear *linearBackOff
	bo     backoff.BackOff
}

func newReconnectPolicy(base time.Duration, max int) *reconnectPolicy {
	l := &linearBackOff{base: base}
	return &reconnectPolicy{
		linear: l,
		bo:     backoff.WithMaxRetries(l, uint64(max)),
	}
}

// next returns the delay before the next attempt, or false once the
// attempt budget is spent.
func (p *reconnectPolicy) next() (time.Duration, bool) {
	d := p.bo.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

func (p *reconnectPolicy) attempts() int { return p.linear.attempt }

func (p *reconnectPolicy) reset() { p.bo.Reset() }
