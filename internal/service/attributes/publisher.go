// Package attributes publishes the local participant's attribute set to the
// room. Writes are fire-and-forget and the latest set always wins.
package attributes

import (
	"context"
	"maps"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"voice-translation-viewer/internal/observability/logging"
	"voice-translation-viewer/internal/observability/metrics"
)

// Setter writes attributes on the local participant.
type Setter interface {
	SetAttributes(ctx context.Context, attrs map[string]string) error
}

// Publisher coalesces attribute updates and writes them at a bounded rate.
// Publish never blocks; intermediate sets are dropped in favour of the latest.
type Publisher struct {
	setter  Setter
	limiter *rate.Limiter
	notify  chan struct{}
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu        sync.Mutex
	pending   map[string]string
	published map[string]string
}

// NewPublisher creates a publisher allowing limit writes per second with the
// given burst.
func NewPublisher(setter Setter, limit rate.Limit, burst int) *Publisher {
	if burst <= 0 {
		burst = 1
	}
	return &Publisher{
		setter:  setter,
		limiter: rate.NewLimiter(limit, burst),
		notify:  make(chan struct{}, 1),
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("attributes"),
	}
}

// Publish queues attrs for the next write, replacing anything still pending.
func (p *Publisher) Publish(attrs map[string]string) {
	p.mu.Lock()
	p.pending = maps.Clone(attrs)
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Published returns the last set written successfully.
func (p *Publisher) Published() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return maps.Clone(p.published)
}

// Run writes pending sets until ctx is cancelled. Identical consecutive sets
// are written once. Failed writes are logged and not retried; the next
// Publish carries the full set again.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.notify:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}

		p.mu.Lock()
		attrs := p.pending
		p.pending = nil
		unchanged := attrs == nil || maps.Equal(attrs, p.published)
		p.mu.Unlock()
		if unchanged {
			continue
		}

		err := p.setter.SetAttributes(ctx, attrs)
		p.metrics.RecordAttributePublish(err)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to publish participant attributes")
			continue
		}

		p.mu.Lock()
		p.published = attrs
		p.mu.Unlock()
		p.logger.Debug().Interface("attributes", attrs).Msg("Published participant attributes")
	}
}
