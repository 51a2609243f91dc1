package history

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bloomlabs/moderationd/internal/chat"
)

// ErrNoMessages is returned when a manual action is recorded with an empty
// selection. An action with no subject cannot be audited and indicates a
// caller bug.
var ErrNoMessages = errors.New("no messages selected")

// ErrEntryNotFound is returned when a status transition targets an unknown
// entry ID.
var ErrEntryNotFound = errors.New("history entry not found")

// ErrNotActive is returned when a status transition targets an entry that
// has already left the Active state.
var ErrNotActive = errors.New("history entry is not active")

// AutomatedModerator names the system actor on automated entries.
const AutomatedModerator = "Auto-Mod System"

// Ledger is the append-only audit trail. Manual and automated entries live
// in separate logs; each log is append-ordered, but neither is globally
// ordered relative to the other, so Merged re-sorts on every read.
type Ledger struct {
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	manual    []Entry
	automated []Entry
}

// NewLedger creates an empty ledger.
func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{
		logger: logger,
		now:    time.Now,
	}
}

// RecordManualAction appends audit entries for a moderator-issued action.
// The selection is split per player: each distinct player in the selection
// yields one entry aggregating that player's messages. Returns the created
// entries so the caller can confirm immediately.
func (l *Ledger) RecordManualAction(action ManualAction, selected []TargetMessage, mod Moderator, exp Experience, opts *ActionOptions) ([]Entry, error) {
	if len(selected) == 0 {
		return nil, ErrNoMessages
	}

	// Group by player, preserving first-seen order.
	var order []int64
	byPlayer := make(map[int64][]TargetMessage)
	for _, m := range selected {
		if _, seen := byPlayer[m.PlayerID]; !seen {
			order = append(order, m.PlayerID)
		}
		byPlayer[m.PlayerID] = append(byPlayer[m.PlayerID], m)
	}

	now := l.now()
	entries := make([]Entry, 0, len(order))
	for _, playerID := range order {
		msgs := byPlayer[playerID]
		first := msgs[0]

		var contentTypes, piiTypes []string
		var ids []string
		for _, m := range msgs {
			ids = append(ids, m.ID)
			contentTypes = append(contentTypes, m.ContentTypes...)
			piiTypes = append(piiTypes, m.PIITypes...)
		}
		contentTypes = dedupe(contentTypes)
		piiTypes = dedupe(piiTypes)

		e := Entry{
			ID:                 "hist_" + uuid.NewString(),
			Timestamp:          now,
			Action:             actionFor(action),
			Moderator:          mod.Name,
			ModeratorRole:      mod.Role,
			PlayerID:           playerID,
			PlayerName:         first.PlayerName,
			ExperienceID:       exp.ID,
			ExperienceName:     exp.Title,
			MessageIDs:         ids,
			MessageContent:     first.Content,
			AffectedCount:      len(msgs),
			OriginalPriority:   highestPriority(msgs),
			OriginalViolations: contentTypes,
			OriginalPII:        piiTypes,
			Reason:             reasonFor(action, contentTypes, piiTypes),
			Status:             StatusActive,
			IsAutomated:        false,
		}
		if opts != nil {
			e.Duration = opts.Duration
		}
		entries = append(entries, e)
	}

	l.mu.Lock()
	l.manual = append(l.manual, entries...)
	l.mu.Unlock()

	l.logger.Info("recorded manual action",
		zap.String("action", string(action)),
		zap.Int("entries", len(entries)),
		zap.Int("messages", len(selected)))

	return entries, nil
}

// RecordAutomatedAction appends an audit entry for a system decision on a
// single message. Automated decisions are per-message, never batched.
func (l *Ledger) RecordAutomatedAction(action chat.Action, msg chat.Message, reason string) Entry {
	e := Entry{
		ID:             "auto_" + uuid.NewString(),
		Timestamp:      l.now(),
		Action:         action,
		Moderator:      AutomatedModerator,
		ModeratorRole:  "ADMIN",
		PlayerID:       msg.PlayerID,
		PlayerName:     msg.PlayerName,
		ExperienceID:   1,
		ExperienceName: "Bloom",
		MessageIDs:     []string{msg.MessageID},
		MessageContent: msg.Text,
		AffectedCount:  1,
		Reason:         reason,
		Status:         StatusActive,
		IsAutomated:    true,
	}

	l.mu.Lock()
	l.automated = append(l.automated, e)
	l.mu.Unlock()

	l.logger.Info("recorded automated action",
		zap.String("action", string(action)),
		zap.String("message_id", msg.MessageID),
		zap.String("reason", reason))

	return e
}

// Merged returns both logs as one list, sorted by timestamp descending.
// The result is always non-nil.
func (l *Ledger) Merged() []Entry {
	l.mu.Lock()
	merged := make([]Entry, 0, len(l.manual)+len(l.automated))
	merged = append(merged, l.manual...)
	merged = append(merged, l.automated...)
	l.mu.Unlock()

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	return merged
}

// Manual returns a copy of the manual log in append order.
func (l *Ledger) Manual() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.manual...)
}

// Automated returns a copy of the automated log in append order.
func (l *Ledger) Automated() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.automated...)
}

// Reverse transitions an active entry to Reversed, recording who reversed
// it and why. The entry itself is never removed.
func (l *Ledger) Reverse(entryID, by, reason string) (Entry, error) {
	now := l.now()
	return l.transition(entryID, func(e *Entry) {
		e.Status = StatusReversed
		e.ReversedBy = by
		e.ReversedAt = &now
		e.ReversalReason = reason
	})
}

// Expire transitions an active entry to Expired, e.g. when a timeout runs
// out.
func (l *Ledger) Expire(entryID string) (Entry, error) {
	return l.transition(entryID, func(e *Entry) {
		e.Status = StatusExpired
	})
}

func (l *Ledger) transition(entryID string, apply func(*Entry)) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, log := range [][]Entry{l.manual, l.automated} {
		for i := range log {
			if log[i].ID != entryID {
				continue
			}
			if log[i].Status != StatusActive {
				return Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrNotActive)
			}
			apply(&log[i])
			return log[i], nil
		}
	}
	return Entry{}, fmt.Errorf("entry %s: %w", entryID, ErrEntryNotFound)
}

// Clear drops both logs. Used when a session is torn down.
func (l *Ledger) Clear() {
	l.mu.Lock()
	l.manual = nil
	l.automated = nil
	l.mu.Unlock()
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
