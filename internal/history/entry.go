// Package history provides the append-only audit trail of moderation
// actions. Manual and automated actions feed two independently ordered logs
// that are merged by timestamp at read time.
package history

import (
	"time"

	"github.com/bloomlabs/moderationd/internal/chat"
)

// Status is the lifecycle state of a history entry. Entries transition
// Active -> Reversed or Active -> Expired; they are never deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusReversed Status = "reversed"
)

// Entry is a single audit record. One entry covers all messages a manual
// action affected for one player, or exactly one message for an automated
// action.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Action        chat.Action `json:"action"`
	Moderator     string      `json:"moderator"`
	ModeratorRole string      `json:"moderator_role"`

	PlayerID       int64  `json:"player_id"`
	PlayerName     string `json:"player_name"`
	ExperienceID   int64  `json:"experience_id"`
	ExperienceName string `json:"experience_name"`

	MessageIDs     []string `json:"message_ids"`
	MessageContent string   `json:"message_content,omitempty"`
	AffectedCount  int      `json:"affected_count"`

	OriginalPriority   chat.Priority `json:"original_priority,omitempty"`
	OriginalViolations []string      `json:"original_violations,omitempty"`
	OriginalPII        []string      `json:"original_pii,omitempty"`

	Reason      string `json:"reason"`
	Duration    string `json:"duration,omitempty"`
	Status      Status `json:"status"`
	IsAutomated bool   `json:"is_automated"`

	ReversedBy     string     `json:"reversed_by,omitempty"`
	ReversedAt     *time.Time `json:"reversed_at,omitempty"`
	ReversalReason string     `json:"reversal_reason,omitempty"`
}

// Moderator identifies who performed a manual action.
type Moderator struct {
	Name string
	Role string
}

// Experience identifies the experience a moderation action applies to.
type Experience struct {
	ID    int64
	Title string
}

// ActionOptions carries optional manual-action parameters.
type ActionOptions struct {
	// Duration applies to timeout-class actions, e.g. "15 minutes".
	Duration string
}

// TargetMessage is a selected message with its violation metadata, the
// subject of a manual action.
type TargetMessage struct {
	ID           string
	PlayerID     int64
	PlayerName   string
	Content      string
	Priority     chat.Priority
	ContentTypes []string
	PIITypes     []string
}
