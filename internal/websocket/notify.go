package websocket

import (
	"context"
	"time"

	"github.com/dukerupert/familyhealth/internal/reminder"
)

// NotifyDue broadcasts a reminder_due message for one occurrence. It lets the
// hub serve as a dispatch notifier.
func (h *Hub) NotifyDue(_ context.Context, r reminder.Reminder, occurrence time.Time) error {
	msg := ReminderMessage("due", &r)
	msg.Extra["occurrence"] = occurrence.Format(time.RFC3339)
	h.Broadcast(msg)
	return nil
}
