// Package chat defines the message and verdict model shared by the
// moderation pipeline. Field tags match the backend wire format.
package chat

import (
	"fmt"
	"time"
)

// Action is the closed set of moderation actions the pipeline understands.
// Wire values outside this set fail ParseAction instead of falling through
// to a default.
type Action string

const (
	ActionApprove            Action = "APPROVE"
	ActionWarning            Action = "WARNING"
	ActionMute               Action = "MUTE"
	ActionKick               Action = "KICK"
	ActionBan                Action = "BAN"
	ActionDeleteMessage      Action = "DELETE_MESSAGE"
	ActionAccountRestriction Action = "ACCOUNT_RESTRICTION"
)

// ParseAction validates a wire action string.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionApprove, ActionWarning, ActionMute, ActionKick, ActionBan,
		ActionDeleteMessage, ActionAccountRestriction:
		return a, nil
	default:
		return "", fmt.Errorf("unknown moderation action %q", s)
	}
}

// Priority ranks a message for moderator attention.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityModerate Priority = "MODERATE"
)

// Rank returns the sort rank of a priority, lowest value first.
// Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityModerate:
		return 2
	default:
		return 3
	}
}

// Verdict is a moderation decision for a single message.
type Verdict struct {
	Action Action
	Reason string
}

// Message is an immutable chat event as delivered by the backend.
// The moderation fields are both present when the backend has already
// analyzed the message; both absent means "not yet analyzed".
type Message struct {
	ID               int64      `json:"id"`
	MessageID        string     `json:"message_id"`
	PlayerID         int64      `json:"player_id"`
	PlayerName       string     `json:"player_name"`
	Text             string     `json:"message"`
	SentimentScore   float64    `json:"sentiment_score"`
	CreatedAt        time.Time  `json:"created_at"`
	ModerationAction string     `json:"moderation_action,omitempty"`
	ModerationReason string     `json:"moderation_reason,omitempty"`
	FlagReason       string     `json:"flag_reason,omitempty"`
	FlaggedAt        *time.Time `json:"flagged_at,omitempty"`
}

// Verdict returns the pre-computed verdict carried by the message, if any.
// ok is false when the message has not been analyzed. A message carrying an
// action outside the closed Action set returns an error; callers treat it as
// unprocessed rather than guessing a transition.
func (m Message) Verdict() (v Verdict, ok bool, err error) {
	if m.ModerationAction == "" || m.ModerationReason == "" {
		return Verdict{}, false, nil
	}
	action, err := ParseAction(m.ModerationAction)
	if err != nil {
		return Verdict{}, false, fmt.Errorf("message %s: %w", m.MessageID, err)
	}
	return Verdict{Action: action, Reason: m.ModerationReason}, true, nil
}

// Timestamp returns the time the message entered review: the flag time when
// present, otherwise the creation time.
func (m Message) Timestamp() time.Time {
	if m.FlaggedAt != nil {
		return *m.FlaggedAt
	}
	return m.CreatedAt
}
