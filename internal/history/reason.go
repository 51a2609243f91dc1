package history

import (
	"fmt"
	"strings"

	"github.com/bloomlabs/moderationd/internal/chat"
)

// ManualAction is the closed set of actions a moderator can issue.
type ManualAction string

const (
	ManualApprove  ManualAction = "approve"
	ManualDelete   ManualAction = "delete"
	ManualEdit     ManualAction = "edit"
	ManualWarn     ManualAction = "warn"
	ManualTimeout  ManualAction = "timeout"
	ManualEscalate ManualAction = "escalate"
	ManualBan      ManualAction = "ban"
)

// ParseManualAction validates a manual action string.
func ParseManualAction(s string) (ManualAction, error) {
	switch a := ManualAction(s); a {
	case ManualApprove, ManualDelete, ManualEdit, ManualWarn,
		ManualTimeout, ManualEscalate, ManualBan:
		return a, nil
	default:
		return "", fmt.Errorf("unknown manual action %q", s)
	}
}

// actionFor maps a manual action onto the audit-action vocabulary.
// Edit is recorded as a deletion (delete + replace); escalation starts
// life as a warning.
func actionFor(a ManualAction) chat.Action {
	switch a {
	case ManualApprove:
		return chat.ActionApprove
	case ManualDelete, ManualEdit:
		return chat.ActionDeleteMessage
	case ManualWarn, ManualEscalate:
		return chat.ActionWarning
	case ManualTimeout:
		return chat.ActionMute
	case ManualBan:
		return chat.ActionBan
	default:
		return chat.ActionWarning
	}
}

// reasonVerbs pairs each manual action with the verb phrase used when the
// selection carried violations.
var reasonVerbs = map[ManualAction]string{
	ManualApprove:  "Approved despite detection",
	ManualDelete:   "Removed for",
	ManualEdit:     "Filtered content",
	ManualWarn:     "Warning for",
	ManualTimeout:  "Timeout for",
	ManualEscalate: "Escalated for",
	ManualBan:      "Banned for",
}

// reasonDefaults is the fallback sentence per action when the selection
// carried no violations.
var reasonDefaults = map[ManualAction]string{
	ManualApprove:  "Message approved for display",
	ManualDelete:   "Message removed",
	ManualEdit:     "Message content filtered",
	ManualWarn:     "Warning issued to player",
	ManualTimeout:  "Temporary chat restriction applied",
	ManualEscalate: "Escalated for senior review",
	ManualBan:      "Account banned",
}

// reasonFor synthesizes a human-readable reason from the action and the
// aggregated violations. Up to two tags are named; the rest are counted.
func reasonFor(action ManualAction, contentTypes, piiTypes []string) string {
	violations := make([]string, 0, len(contentTypes)+len(piiTypes))
	violations = append(violations, contentTypes...)
	for _, p := range piiTypes {
		violations = append(violations, "PII:"+p)
	}

	if len(violations) == 0 {
		if s, ok := reasonDefaults[action]; ok {
			return s
		}
		return "Moderation action taken"
	}

	text := strings.Join(violations[:min(2, len(violations))], ", ")
	if len(violations) > 2 {
		text += fmt.Sprintf(" +%d more", len(violations)-2)
	}

	verb, ok := reasonVerbs[action]
	if !ok {
		return "Action taken for: " + text
	}
	return verb + ": " + text
}

// highestPriority returns the most severe priority present in the selection,
// or "" when no message carries one.
func highestPriority(messages []TargetMessage) chat.Priority {
	best := chat.Priority("")
	for _, m := range messages {
		if m.Priority == "" {
			continue
		}
		if best == "" || m.Priority.Rank() < best.Rank() {
			best = m.Priority
		}
	}
	return best
}
