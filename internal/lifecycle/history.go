package lifecycle

import "time"

// HistoryEntry is one validity interval of a support row. ValidTo is nil for the
// open (current) interval.
type HistoryEntry struct {
	SupportID    string
	Status       SupportStatus
	IsMostRecent bool
	ValidFrom    time.Time
	ValidTo      *time.Time
}

// Covers reports whether the interval [ValidFrom, ValidTo) contains at.
func (h HistoryEntry) Covers(at time.Time) bool {
	if at.Before(h.ValidFrom) {
		return false
	}
	return h.ValidTo == nil || at.Before(*h.ValidTo)
}
