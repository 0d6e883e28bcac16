// Package netutil wraps the dial/reconnect step of the venue stream
// workers in a circuit breaker and provides per-host REST rate
// limiting and reconnect backoff.
package netutil

import (
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
)

const (
	breakerWindow      = time.Minute // rolling interval the counts cover
	breakerOpenFor     = time.Minute // how long an open breaker rejects before probing
	breakerMaxFailures = 3
	breakerMinRequests = 20
	breakerMaxFailRate = 0.05
)

// Breaker guards a stream worker's socket dial step so a
// persistently failing endpoint gets probed instead of hammered: it
// opens after breakerMaxFailures consecutive failures, or once the
// failure rate over at least breakerMinRequests in the rolling window
// exceeds breakerMaxFailRate.
type Breaker struct {
	cb *cb.CircuitBreaker
}

// NewBreaker creates a named circuit breaker. State transitions are
// logged so a reconnect storm is visible in the structured log rather
// than only as a burst of dial errors.
func NewBreaker(name string) *Breaker {
	return &Breaker{cb: cb.NewCircuitBreaker(cb.Settings{
		Name:        name,
		Interval:    breakerWindow,
		Timeout:     breakerOpenFor,
		ReadyToTrip: tripPolicy,
		OnStateChange: func(name string, from, to cb.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})}
}

func tripPolicy(counts cb.Counts) bool {
	if counts.ConsecutiveFailures >= breakerMaxFailures {
		return true
	}
	return counts.Requests >= breakerMinRequests &&
		float64(counts.TotalFailures)/float64(counts.Requests) > breakerMaxFailRate
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}
