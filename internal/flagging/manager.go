// Package flagging handles user-initiated "flag this message" submissions
// with per-message in-flight de-duplication and optimistic local state.
package flagging

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bloomlabs/moderationd/internal/metrics"
)

// Submitter issues the external flag request.
type Submitter interface {
	SubmitFlag(ctx context.Context, messageID, reason string) error
}

// Manager tracks which messages are flagged and guarantees at most one
// outstanding flag request per message at any time.
type Manager struct {
	submitter Submitter
	metrics   *metrics.Pipeline
	logger    *zap.Logger

	mu       sync.Mutex
	flagged  map[string]struct{}
	inflight map[string]struct{}
}

// NewManager creates a flag manager backed by the given submitter.
func NewManager(submitter Submitter, pm *metrics.Pipeline, logger *zap.Logger) *Manager {
	return &Manager{
		submitter: submitter,
		metrics:   pm,
		logger:    logger,
		flagged:   make(map[string]struct{}),
		inflight:  make(map[string]struct{}),
	}
}

// Flag marks a message for review. A message already flagged, or with a
// request outstanding, returns immediately without a network call, so a
// double-click submits exactly once. On failure the optimistic state is
// reverted and the error is returned to the caller; a human is waiting for
// feedback on this path, so nothing is swallowed.
func (m *Manager) Flag(ctx context.Context, messageID, reason string) error {
	m.mu.Lock()
	if _, ok := m.flagged[messageID]; ok {
		m.mu.Unlock()
		m.metrics.FlagsSubmitted.WithLabelValues("duplicate").Inc()
		return nil
	}
	if _, ok := m.inflight[messageID]; ok {
		m.mu.Unlock()
		m.metrics.FlagsSubmitted.WithLabelValues("duplicate").Inc()
		return nil
	}
	m.inflight[messageID] = struct{}{}
	m.mu.Unlock()

	err := m.submitter.SubmitFlag(ctx, messageID, reason)

	m.mu.Lock()
	delete(m.inflight, messageID)
	if err == nil {
		m.flagged[messageID] = struct{}{}
	}
	m.mu.Unlock()

	if err != nil {
		m.metrics.FlagsSubmitted.WithLabelValues("error").Inc()
		m.logger.Error("flag submission failed",
			zap.String("message_id", messageID), zap.Error(err))
		return fmt.Errorf("flag message %s: %w", messageID, err)
	}

	m.metrics.FlagsSubmitted.WithLabelValues("ok").Inc()
	m.logger.Info("message flagged", zap.String("message_id", messageID))
	return nil
}

// IsFlagged reports whether the message has been flagged.
func (m *Manager) IsFlagged(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.flagged[messageID]
	return ok
}

// IsFlagging reports whether a flag request is currently outstanding for
// the message.
func (m *Manager) IsFlagging(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[messageID]
	return ok
}

// FlaggedIDs returns the set of flagged message IDs.
func (m *Manager) FlaggedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.flagged))
	for id := range m.flagged {
		ids = append(ids, id)
	}
	return ids
}

// Clear drops all flagged and in-flight state.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.flagged = make(map[string]struct{})
	m.inflight = make(map[string]struct{})
	m.mu.Unlock()
}
