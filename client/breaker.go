package client

import (
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

const (
	breakerResetInitial = 30 * time.Second
	breakerResetMax     = 5 * time.Minute
)

// hostBreakers keeps one circuit breaker per registry host, so a private
// registry that is down does not stop lookups against the public one.
type hostBreakers struct {
	mu        sync.Mutex
	threshold int64
	byHost    map[string]*circuit.Breaker
}

func newHostBreakers(threshold int64) *hostBreakers {
	return &hostBreakers{threshold: threshold, byHost: make(map[string]*circuit.Breaker)}
}

// forURL returns the host of rawURL and its breaker, created on first use.
func (h *hostBreakers) forURL(rawURL string) (string, *circuit.Breaker) {
	host := registryHost(rawURL)

	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.byHost[host]; ok {
		return host, b
	}

	reset := backoff.NewExponentialBackOff()
	reset.InitialInterval = breakerResetInitial
	reset.MaxInterval = breakerResetMax
	reset.Reset()

	b := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    reset,
		ShouldTrip: circuit.ThresholdTripFunc(h.threshold),
	})
	h.byHost[host] = b
	return host, b
}

// states maps every host contacted so far to "open" or "closed".
func (h *hostBreakers) states() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]string, len(h.byHost))
	for host, b := range h.byHost {
		state := "closed"
		if b.Tripped() {
			state = "open"
		}
		out[host] = state
	}
	return out
}

// registryHost is the host[:port] of rawURL. Unparsable input is used as-is,
// capped so a garbage URL cannot become an unbounded map key.
func registryHost(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	const maxKey = 50
	if len(rawURL) > maxKey {
		return rawURL[:maxKey]
	}
	return rawURL
}

// BreakerStates reports "open" or "closed" for every registry host contacted.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}
