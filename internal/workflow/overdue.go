package workflow

import (
	"regexp"
	"strings"
	"time"

	"github.com/polycontrol/api/internal/enum"
)

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Deadlines are entered as free text; these are the datetime shapes the
// legacy data contains.
var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// IsOverdue reports whether an order has blown its deadline. Orders that
// are ready, closed, cancelled or defective are never overdue: the work is
// delivered or no longer progressing. A date-only deadline expires at
// 23:59:59.999 local time on that date, so it does not read as overdue on
// the morning of the due day. An unparseable deadline is never overdue.
func IsOverdue(status, deadline string, now time.Time) bool {
	raw := strings.TrimSpace(deadline)
	if raw == "" {
		return false
	}
	switch status {
	case enum.OrderStatusReady, enum.OrderStatusClosed, enum.OrderStatusCancelled, enum.OrderStatusDefect:
		return false
	}

	if dateOnlyRe.MatchString(raw) {
		day, err := time.ParseInLocation("2006-01-02", raw, now.Location())
		if err != nil {
			return false
		}
		endOfDay := day.Add(24*time.Hour - time.Millisecond)
		return endOfDay.Before(now)
	}

	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return t.Before(now)
		}
	}
	return false
}
