// Package moderation implements the moderation event processor: the state
// machine that converts each observed chat message into at most one terminal
// outcome, exactly once, and records why.
package moderation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/bloomlabs/moderationd/internal/chat"
	"github.com/bloomlabs/moderationd/internal/history"
	"github.com/bloomlabs/moderationd/internal/metrics"
)

// VerdictSource issues the fallback moderation request for messages that
// arrive without a pre-computed verdict.
type VerdictSource interface {
	Moderate(ctx context.Context, msg chat.Message) (chat.Verdict, error)
}

// Flagger receives best-effort propagation of automated flags. Optional:
// a nil Flagger means the flag store is not wired.
type Flagger interface {
	Flag(ctx context.Context, messageID, reason string) error
}

// Outcome is the result of ingesting one message.
type Outcome int

const (
	// OutcomeDisabled means auto-moderation is off; the call had no effect.
	OutcomeDisabled Outcome = iota
	// OutcomeDuplicate means the message was already processed.
	OutcomeDuplicate
	// OutcomeApproved means the message passed; approved messages leave no
	// audit trail, only exceptions are recorded.
	OutcomeApproved
	// OutcomeFlagged means the message was flagged for review.
	OutcomeFlagged
	// OutcomeDeleted means the message was hidden from the feed.
	OutcomeDeleted
	// OutcomeRetry means no verdict could be obtained; the message stays
	// unprocessed and eligible for re-ingestion on the next poll.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDisabled:
		return "disabled"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeApproved:
		return "approved"
	case OutcomeFlagged:
		return "flagged"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Processor owns the processed, deleted and flagged sets. The processed set
// grows for the lifetime of the session; there is no eviction, which is
// acceptable for a session-scoped working set.
type Processor struct {
	source  VerdictSource
	ledger  *history.Ledger
	flagger Flagger
	metrics *metrics.Pipeline
	logger  *zap.Logger

	mu        sync.Mutex
	enabled   bool
	processed map[string]struct{}
	deleted   map[string]struct{}
	flagged   map[string]struct{}
}

// NewProcessor creates a processor. flagger may be nil; propagation of
// automated flags is then skipped entirely.
func NewProcessor(source VerdictSource, ledger *history.Ledger, flagger Flagger, pm *metrics.Pipeline, logger *zap.Logger) *Processor {
	return &Processor{
		source:    source,
		ledger:    ledger,
		flagger:   flagger,
		metrics:   pm,
		logger:    logger,
		processed: make(map[string]struct{}),
		deleted:   make(map[string]struct{}),
		flagged:   make(map[string]struct{}),
	}
}

// Enable turns auto-moderation on. Messages ingested while disabled are not
// replayed automatically; callers resynchronize via IngestBatch.
func (p *Processor) Enable() {
	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
	p.logger.Info("auto-moderation enabled")
}

// Disable turns auto-moderation off; Ingest becomes a no-op.
func (p *Processor) Disable() {
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
	p.logger.Info("auto-moderation disabled")
}

// Enabled reports whether auto-moderation is on.
func (p *Processor) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Ingest converts one message into at most one terminal outcome. Messages
// without a verdict trigger a fallback request; on fallback failure the
// message is left unprocessed and stays eligible for re-ingestion (fail-open,
// retryable). Re-ingesting an already processed message is a no-op.
func (p *Processor) Ingest(ctx context.Context, msg chat.Message) Outcome {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return OutcomeDisabled
	}
	if _, done := p.processed[msg.MessageID]; done {
		p.mu.Unlock()
		p.metrics.MessagesProcessed.WithLabelValues(OutcomeDuplicate.String()).Inc()
		return OutcomeDuplicate
	}
	p.mu.Unlock()

	verdict, ok, err := msg.Verdict()
	if err != nil {
		p.logger.Warn("unusable verdict, leaving message unprocessed",
			zap.String("message_id", msg.MessageID), zap.Error(err))
		return OutcomeRetry
	}
	if !ok {
		verdict, err = p.source.Moderate(ctx, msg)
		if err != nil {
			p.metrics.FallbackErrors.Inc()
			p.logger.Warn("fallback moderation failed, message eligible for retry",
				zap.String("message_id", msg.MessageID), zap.Error(err))
			return OutcomeRetry
		}
	}

	return p.apply(ctx, msg, verdict)
}

// IngestBatch applies every verdict-bearing message in order, issuing no
// fallback calls: on a backfill, a missing verdict means "not yet analyzed",
// and per-message fallback requests would storm the endpoint. Returns the
// number of messages that reached a terminal outcome.
func (p *Processor) IngestBatch(ctx context.Context, msgs []chat.Message) int {
	if !p.Enabled() {
		return 0
	}

	applied := 0
	for _, msg := range msgs {
		verdict, ok, err := msg.Verdict()
		if err != nil {
			p.logger.Warn("skipping message with unusable verdict",
				zap.String("message_id", msg.MessageID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		switch p.apply(ctx, msg, verdict) {
		case OutcomeApproved, OutcomeFlagged, OutcomeDeleted:
			applied++
		}
	}
	return applied
}

// apply performs the terminal transition for a resolved verdict. The set
// mutation and the processed mark happen under one lock so a message can
// reach at most one terminal state no matter how often it is observed.
func (p *Processor) apply(ctx context.Context, msg chat.Message, v chat.Verdict) Outcome {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return OutcomeDisabled
	}
	if _, done := p.processed[msg.MessageID]; done {
		p.mu.Unlock()
		p.metrics.MessagesProcessed.WithLabelValues(OutcomeDuplicate.String()).Inc()
		return OutcomeDuplicate
	}

	var outcome Outcome
	switch {
	case v.Action == chat.ActionDeleteMessage:
		p.deleted[msg.MessageID] = struct{}{}
		outcome = OutcomeDeleted
	case v.Action != chat.ActionApprove:
		p.flagged[msg.MessageID] = struct{}{}
		outcome = OutcomeFlagged
	default:
		outcome = OutcomeApproved
	}
	p.processed[msg.MessageID] = struct{}{}
	p.mu.Unlock()

	switch outcome {
	case OutcomeDeleted:
		p.ledger.RecordAutomatedAction(chat.ActionDeleteMessage, msg, "Auto-deleted: "+v.Reason)
		p.logger.Info("auto-deleted message",
			zap.String("message_id", msg.MessageID), zap.String("reason", v.Reason))
	case OutcomeFlagged:
		reason := "Auto-flagged: " + v.Reason
		p.ledger.RecordAutomatedAction(chat.ActionWarning, msg, reason)
		p.logger.Info("auto-flagged message",
			zap.String("message_id", msg.MessageID), zap.String("reason", v.Reason))
		if p.flagger != nil {
			// Best effort: the local transition already happened. A failure
			// here can leave the two flag stores divergent; that is accepted,
			// not corrected.
			if err := p.flagger.Flag(ctx, msg.MessageID, reason); err != nil {
				p.logger.Error("flag propagation failed",
					zap.String("message_id", msg.MessageID), zap.Error(err))
			}
		}
	}

	p.metrics.MessagesProcessed.WithLabelValues(outcome.String()).Inc()
	return outcome
}

// IsDeleted reports whether the message was auto-deleted this session.
func (p *Processor) IsDeleted(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.deleted[messageID]
	return ok
}

// IsFlagged reports whether the message was auto-flagged this session.
func (p *Processor) IsFlagged(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.flagged[messageID]
	return ok
}

// DeletedIDs returns the identifiers currently hidden from the feed.
func (p *Processor) DeletedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return keys(p.deleted)
}

// FlaggedIDs returns the identifiers currently under review.
func (p *Processor) FlaggedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return keys(p.flagged)
}

// ProcessedCount returns the size of the processed set.
func (p *Processor) ProcessedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.processed)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
