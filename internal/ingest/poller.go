// Package ingest runs the live ingestion loop: a fixed-interval poll of the
// backend message feed that diffs each batch against the previous one and
// forwards only unseen messages to the moderation processor.
package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bloomlabs/moderationd/internal/chat"
	"github.com/bloomlabs/moderationd/internal/metrics"
	"github.com/bloomlabs/moderationd/internal/moderation"
)

// Fetcher supplies the live message feed.
type Fetcher interface {
	LiveMessages(ctx context.Context, limit int) ([]chat.Message, error)
}

// Processor consumes newly observed messages.
type Processor interface {
	Ingest(ctx context.Context, msg chat.Message) moderation.Outcome
}

// Config configures the poller.
type Config struct {
	// Interval between polls. Default: 10 seconds.
	Interval time.Duration

	// Limit is how many recent messages each poll requests. Default: 20.
	Limit int
}

// Poller polls the live feed on a fixed interval, with one immediate fetch
// on start. A boolean in-flight guard drops ticks that fire while a fetch is
// outstanding, so under a slow network the loop degrades to "as fast as the
// network allows, never faster than the interval".
type Poller struct {
	fetcher   Fetcher
	processor Processor
	config    *Config
	metrics   *metrics.Pipeline
	logger    *zap.Logger

	mu        sync.Mutex
	running   bool
	fetching  bool
	prev      map[string]struct{}
	lastBatch []chat.Message
	lastErr   error

	wg     sync.WaitGroup
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller creates a poller.
func NewPoller(fetcher Fetcher, processor Processor, config *Config, pm *metrics.Pipeline, logger *zap.Logger) *Poller {
	if config == nil {
		config = &Config{}
	}
	if config.Interval <= 0 {
		config.Interval = 10 * time.Second
	}
	if config.Limit <= 0 {
		config.Limit = 20
	}

	return &Poller{
		fetcher:   fetcher,
		processor: processor,
		config:    config,
		metrics:   pm,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins polling in the background: one immediate fetch, then one per
// interval. Returns immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("starting live ingestion",
		zap.Duration("interval", p.config.Interval),
		zap.Int("limit", p.config.Limit))

	go p.run(ctx)
}

// Stop halts the loop and waits for any in-flight fetch to finish. A fetch
// that completes after Stop discards its results instead of forwarding them.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("stopping live ingestion")
	close(p.stopCh)
	<-p.doneCh
	p.wg.Wait()
}

// Refresh triggers one fetch immediately, subject to the same in-flight
// guard as the timer. No-op when the poller is not running.
func (p *Poller) Refresh(ctx context.Context) {
	if !p.IsRunning() {
		return
	}
	if !p.beginFetch() {
		return
	}
	defer p.endFetch()
	p.fetch(ctx)
}

// IsRunning reports whether the loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastBatch returns the most recent successfully fetched batch. Serves as
// last-known-good state while the feed is unreachable, and as the backfill
// input when auto-moderation is enabled mid-session.
func (p *Poller) LastBatch() []chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]chat.Message(nil), p.lastBatch...)
}

// LastError returns the most recent fetch error, or nil after a successful
// fetch. Surfaced as a non-blocking indicator; the loop keeps polling.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.doneCh)

	p.spawnFetch(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("live ingestion stopped: context canceled")
			return
		case <-p.stopCh:
			p.logger.Info("live ingestion stopped: stop requested")
			return
		case <-ticker.C:
			p.spawnFetch(ctx)
		}
	}
}

func (p *Poller) spawnFetch(ctx context.Context) {
	if !p.beginFetch() {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.endFetch()
		p.fetch(ctx)
	}()
}

// beginFetch acquires the in-flight guard. A tick that loses the guard is
// dropped, not queued.
func (p *Poller) beginFetch() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetching {
		p.metrics.Polls.WithLabelValues("skipped").Inc()
		p.logger.Debug("fetch skipped: already fetching")
		return false
	}
	p.fetching = true
	return true
}

func (p *Poller) endFetch() {
	p.mu.Lock()
	p.fetching = false
	p.mu.Unlock()
}

func (p *Poller) fetch(ctx context.Context) {
	msgs, err := p.fetcher.LiveMessages(ctx, p.config.Limit)
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.metrics.Polls.WithLabelValues("error").Inc()
		p.logger.Warn("live fetch failed, serving last known batch", zap.Error(err))
		return
	}

	p.mu.Lock()
	if !p.running {
		// Response arrived after teardown.
		p.mu.Unlock()
		return
	}
	fresh := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, seen := p.prev[m.MessageID]; !seen {
			fresh = append(fresh, m)
		}
	}
	ids := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		ids[m.MessageID] = struct{}{}
	}
	p.prev = ids
	p.lastBatch = msgs
	p.lastErr = nil
	p.mu.Unlock()

	p.metrics.Polls.WithLabelValues("ok").Inc()
	p.logger.Debug("live fetch complete",
		zap.Int("messages", len(msgs)), zap.Int("new", len(fresh)))

	for _, m := range fresh {
		p.processor.Ingest(ctx, m)
	}
}
