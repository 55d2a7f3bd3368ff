// Package pool bounds concurrent work per host and wraps jobs with the
// retry and timeout policies of the equivalence pipeline.
package pool

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/lukman83/pricealert/internal/metrics"
)

const (
	DefaultMaxPerDomain = 2
	DefaultPollInterval = 120 * time.Millisecond
)

// DomainPool caps in-flight jobs per hostname.
type DomainPool struct {
	max  int
	poll time.Duration

	mu     sync.Mutex
	active map[string]int
}

// New creates a pool allowing max concurrent jobs per host, polling for a
// free slot every poll. Non-positive values take the defaults.
func New(max int, poll time.Duration) *DomainPool {
	if max <= 0 {
		max = DefaultMaxPerDomain
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &DomainPool{max: max, poll: poll, active: make(map[string]int)}
}

// Active returns the number of jobs currently running against host.
func (p *DomainPool) Active(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[host]
}

// Run waits for a slot on rawURL's host, then runs job. Waiting stops with
// ctx.Err() if ctx ends first. A URL without a parsable host shares the
// empty-host slot.
func Run[T any](ctx context.Context, p *DomainPool, rawURL string, job func(context.Context) (T, error)) (T, error) {
	host := hostOf(rawURL)
	if err := p.acquire(ctx, host); err != nil {
		var zero T
		return zero, err
	}
	defer p.release(host)
	return job(ctx)
}

func (p *DomainPool) tryAcquire(host string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[host] >= p.max {
		return false
	}
	p.active[host]++
	return true
}

func (p *DomainPool) acquire(ctx context.Context, host string) error {
	if p.tryAcquire(host) {
		return nil
	}
	metrics.PoolWaits.Inc()

	t := time.NewTimer(p.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if p.tryAcquire(host) {
				return nil
			}
			t.Reset(p.poll)
		}
	}
}

func (p *DomainPool) release(host string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[host] <= 1 {
		delete(p.active, host)
		return
	}
	p.active[host]--
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
