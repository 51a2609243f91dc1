package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bloomlabs/moderationd/internal/chat"
)

var (
	testMod = Moderator{Name: "mod_jane", Role: "MODERATOR"}
	testExp = Experience{ID: 1, Title: "Bloom"}
)

func TestRecordManualAction_EmptySelection(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	_, err := l.RecordManualAction(ManualDelete, nil, testMod, testExp, nil)
	assert.ErrorIs(t, err, ErrNoMessages)
	assert.Empty(t, l.Manual())
}

func TestRecordManualAction_ReasonSynthesis(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	entries, err := l.RecordManualAction(ManualDelete, []TargetMessage{
		{ID: "m1", PlayerID: 7, PlayerName: "Kai", Content: "hey", ContentTypes: []string{"H", "V", "HR"}},
	}, testMod, testExp, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, "Removed for: H, V +1 more", entries[0].Reason)
	assert.Equal(t, chat.ActionDeleteMessage, entries[0].Action)
	assert.Equal(t, StatusActive, entries[0].Status)
	assert.False(t, entries[0].IsAutomated)
}

func TestRecordManualAction_DefaultReasons(t *testing.T) {
	tests := []struct {
		action ManualAction
		want   string
	}{
		{ManualApprove, "Message approved for display"},
		{ManualDelete, "Message removed"},
		{ManualEdit, "Message content filtered"},
		{ManualWarn, "Warning issued to player"},
		{ManualTimeout, "Temporary chat restriction applied"},
		{ManualEscalate, "Escalated for senior review"},
		{ManualBan, "Account banned"},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			l := NewLedger(zaptest.NewLogger(t))
			entries, err := l.RecordManualAction(tt.action, []TargetMessage{
				{ID: "m1", PlayerID: 1, PlayerName: "Kai"},
			}, testMod, testExp, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, entries[0].Reason)
		})
	}
}

func TestRecordManualAction_PIIReason(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	entries, err := l.RecordManualAction(ManualBan, []TargetMessage{
		{ID: "m1", PlayerID: 1, PlayerName: "Kai", PIITypes: []string{"EMAIL"}},
	}, testMod, testExp, nil)
	require.NoError(t, err)
	assert.Equal(t, "Banned for: PII:EMAIL", entries[0].Reason)
}

func TestRecordManualAction_SplitsPerPlayer(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	entries, err := l.RecordManualAction(ManualWarn, []TargetMessage{
		{ID: "m1", PlayerID: 1, PlayerName: "Kai", Content: "first", ContentTypes: []string{"H"}},
		{ID: "m2", PlayerID: 2, PlayerName: "Ren", Content: "other"},
		{ID: "m3", PlayerID: 1, PlayerName: "Kai", Content: "second", ContentTypes: []string{"H", "V"}},
	}, testMod, testExp, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// First-seen player order is preserved.
	kai, ren := entries[0], entries[1]
	assert.Equal(t, int64(1), kai.PlayerID)
	assert.Equal(t, []string{"m1", "m3"}, kai.MessageIDs)
	assert.Equal(t, 2, kai.AffectedCount)
	assert.Equal(t, "first", kai.MessageContent)
	// Union of tags, deduplicated.
	assert.Equal(t, []string{"H", "V"}, kai.OriginalViolations)
	assert.Equal(t, "Warning for: H, V", kai.Reason)

	assert.Equal(t, int64(2), ren.PlayerID)
	assert.Equal(t, 1, ren.AffectedCount)
	assert.Equal(t, "Warning issued to player", ren.Reason)
}

func TestRecordManualAction_HighestPriority(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	entries, err := l.RecordManualAction(ManualDelete, []TargetMessage{
		{ID: "m1", PlayerID: 1, PlayerName: "Kai", Priority: chat.PriorityModerate},
		{ID: "m2", PlayerID: 1, PlayerName: "Kai", Priority: chat.PriorityCritical},
		{ID: "m3", PlayerID: 1, PlayerName: "Kai", Priority: chat.PriorityHigh},
	}, testMod, testExp, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.PriorityCritical, entries[0].OriginalPriority)
}

func TestRecordManualAction_Duration(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	entries, err := l.RecordManualAction(ManualTimeout, []TargetMessage{
		{ID: "m1", PlayerID: 1, PlayerName: "Kai"},
	}, testMod, testExp, &ActionOptions{Duration: "15 minutes"})
	require.NoError(t, err)
	assert.Equal(t, "15 minutes", entries[0].Duration)
	assert.Equal(t, chat.ActionMute, entries[0].Action)
}

func TestRecordAutomatedAction(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	msg := chat.Message{MessageID: "m9", PlayerID: 42, PlayerName: "Kai", Text: "spam"}
	e := l.RecordAutomatedAction(chat.ActionDeleteMessage, msg, "Auto-deleted: PII detected")

	assert.Equal(t, AutomatedModerator, e.Moderator)
	assert.True(t, e.IsAutomated)
	assert.Equal(t, []string{"m9"}, e.MessageIDs)
	assert.Equal(t, 1, e.AffectedCount)
	assert.Equal(t, "Auto-deleted: PII detected", e.Reason)
	assert.Len(t, l.Automated(), 1)
	assert.Empty(t, l.Manual())
}

func TestMerged_OrdersByTimestampDescending(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	record := func(ts time.Time, manual bool) {
		l.now = func() time.Time { return ts }
		if manual {
			_, err := l.RecordManualAction(ManualWarn, []TargetMessage{
				{ID: "m", PlayerID: 1, PlayerName: "Kai"},
			}, testMod, testExp, nil)
			require.NoError(t, err)
		} else {
			l.RecordAutomatedAction(chat.ActionWarning, chat.Message{MessageID: "m"}, "Auto-flagged: x")
		}
	}

	record(base.Add(10*time.Second), true)
	record(base.Add(30*time.Second), true)
	record(base.Add(20*time.Second), false)

	merged := l.Merged()
	require.Len(t, merged, 3)
	assert.Equal(t, base.Add(30*time.Second), merged[0].Timestamp)
	assert.Equal(t, base.Add(20*time.Second), merged[1].Timestamp)
	assert.Equal(t, base.Add(10*time.Second), merged[2].Timestamp)
}

func TestMerged_EmptyIsNotNil(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))
	assert.NotNil(t, l.Merged())
	assert.Empty(t, l.Merged())
}

func TestReverse(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	entries, err := l.RecordManualAction(ManualBan, []TargetMessage{
		{ID: "m1", PlayerID: 1, PlayerName: "Kai"},
	}, testMod, testExp, nil)
	require.NoError(t, err)
	id := entries[0].ID

	reversed, err := l.Reverse(id, "admin_lee", "appeal accepted")
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, reversed.Status)
	assert.Equal(t, "admin_lee", reversed.ReversedBy)
	assert.Equal(t, "appeal accepted", reversed.ReversalReason)
	require.NotNil(t, reversed.ReversedAt)

	// The stored entry is updated, not copied away.
	assert.Equal(t, StatusReversed, l.Manual()[0].Status)

	// A reversed entry cannot be reversed again.
	_, err = l.Reverse(id, "admin_lee", "again")
	assert.ErrorIs(t, err, ErrNotActive)

	_, err = l.Reverse("hist_missing", "admin_lee", "nope")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestExpire(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))

	e := l.RecordAutomatedAction(chat.ActionWarning, chat.Message{MessageID: "m1"}, "Auto-flagged: x")
	expired, err := l.Expire(e.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)
}

func TestClear(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t))
	l.RecordAutomatedAction(chat.ActionWarning, chat.Message{MessageID: "m1"}, "Auto-flagged: x")

	l.Clear()
	assert.Empty(t, l.Merged())
}

func TestParseManualAction(t *testing.T) {
	for _, valid := range []string{"approve", "delete", "edit", "warn", "timeout", "escalate", "ban"} {
		_, err := ParseManualAction(valid)
		assert.NoError(t, err)
	}
	_, err := ParseManualAction("obliterate")
	assert.Error(t, err)
}
