package pasugo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicyIsLinearAndBounded(t *testing.T) {
	p := newReconnectPolicy(2*time.Second, 5)

	var delays []time.Duration
	for {
		d, ok := p.next()
		if !ok {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second, 10 * time.Second,
	}, delays)
	assert.Equal(t, 5, p.attempts())

	_, ok := p.next()
	assert.False(t, ok, "stays exhausted")
}

func TestReconnectPolicyReset(t *testing.T) {
	p := newReconnectPolicy(time.Second, 3)
	p.next()
	p.next()
	assert.Equal(t, 2, p.attempts())

	p.reset()
	assert.Zero(t, p.attempts())
	d, ok := p.next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestReconnectPolicyZeroBudget(t *testing.T) {
	p := newReconnectPolicy(time.Second, 0)
	_, ok := p.next()
	assert.False(t, ok)
}
