// Package queue derives the priority-ranked review queue from the currently
// flagged messages. Derivation is pure and recomputed on every read; nothing
// here is persisted.
package queue

import (
	"sort"
	"strconv"
	"time"

	"github.com/bloomlabs/moderationd/internal/chat"
)

// Item is the read model a moderator works from.
type Item struct {
	ID             string        `json:"id"`
	Type           string        `json:"type"`
	Priority       chat.Priority `json:"priority"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	Reason         string        `json:"reason"`
	ReportedBy     string        `json:"reported_by"`
	Timestamp      time.Time     `json:"timestamp"`
	ExperienceID   int64         `json:"experience_id"`
	ExperienceName string        `json:"experience_name"`
	Status         string        `json:"status"`
	PlayerName     string        `json:"player_name"`
	PlayerID       string        `json:"player_id"`
	MessageContent string        `json:"message_content"`
	MessageID      string        `json:"message_id"`
	ReportCount    int           `json:"report_count"`
}

// Derive converts flagged messages into queue items. Ordering is the
// caller's responsibility; use Sort wherever the queue is displayed.
func Derive(flagged []chat.Message) []Item {
	items := make([]Item, 0, len(flagged))
	for _, msg := range flagged {
		items = append(items, itemFrom(msg))
	}
	return items
}

// Sort orders items in place for display: priority rank first
// (Critical > High > Moderate), ties broken by timestamp, most recent
// first. The sort is stable so equal items keep a deterministic order.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Priority.Rank(), items[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return items[i].Timestamp.After(items[j].Timestamp)
	})
}

func itemFrom(msg chat.Message) Item {
	priority := chat.PriorityModerate
	if msg.ModerationAction != "" {
		switch action, _ := chat.ParseAction(msg.ModerationAction); action {
		case chat.ActionDeleteMessage, chat.ActionBan:
			priority = chat.PriorityCritical
		case chat.ActionKick, chat.ActionMute:
			priority = chat.PriorityHigh
		}
	} else if msg.SentimentScore < -50 {
		priority = chat.PriorityHigh
	}

	title := "User Flagged Message"
	reportedBy := "User Report"
	if msg.ModerationAction != "" {
		title = msg.ModerationAction + " - Auto Flagged"
		reportedBy = "AutoMod AI"
	}

	description := msg.ModerationReason
	if description == "" {
		description = "Message flagged by user for review"
	}

	reason := msg.FlagReason
	if reason == "" {
		reason = msg.ModerationReason
	}
	if reason == "" {
		reason = "Flagged for review"
	}

	playerName := msg.PlayerName
	if playerName == "" {
		playerName = "Player" + strconv.FormatInt(msg.PlayerID, 10)
	}

	return Item{
		ID:             "queue_" + msg.MessageID,
		Type:           "message",
		Priority:       priority,
		Title:          title,
		Description:    description,
		Reason:         reason,
		ReportedBy:     reportedBy,
		Timestamp:      msg.Timestamp(),
		ExperienceID:   1,
		ExperienceName: "Bloom",
		Status:         "pending",
		PlayerName:     playerName,
		PlayerID:       strconv.FormatInt(msg.PlayerID, 10),
		MessageContent: msg.Text,
		MessageID:      msg.MessageID,
		ReportCount:    1,
	}
}
