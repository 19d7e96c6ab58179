// Package activity decides when a live support has gone quiet long enough to
// warrant a reminder.
package activity

import "time"

const (
	DefaultThresholdDays   = 90
	DefaultSuppressionDays = 30
)

const day = 24 * time.Hour

// Signals are the latest timestamps of each meaningful activity for a support.
type Signals struct {
	LatestMessageAt      *time.Time
	LatestStatusChangeAt *time.Time
	LatestTaskUpdateAt   *time.Time
}

// LastActivity returns the most recent of the signals, or false when none exist.
func (s Signals) LastActivity() (time.Time, bool) {
	var last time.Time
	found := false
	for _, candidate := range []*time.Time{s.LatestMessageAt, s.LatestStatusChangeAt, s.LatestTaskUpdateAt} {
		if candidate == nil {
			continue
		}
		if !found || candidate.After(last) {
			last = *candidate
			found = true
		}
	}
	return last, found
}

type Window struct {
	ThresholdDays   int
	SuppressionDays int
}

func (w Window) normalized() Window {
	if w.ThresholdDays <= 0 {
		w.ThresholdDays = DefaultThresholdDays
	}
	if w.SuppressionDays < 0 {
		w.SuppressionDays = DefaultSuppressionDays
	}
	return w
}

// IsIdle reports whether a support with the given signals should be flagged at
// now. A support with no activity at all is never flagged. lastReminderAt is the
// latest reminder logged for the (innovation, unit) pair.
func IsIdle(now time.Time, signals Signals, lastReminderAt *time.Time, window Window) bool {
	window = window.normalized()
	last, ok := signals.LastActivity()
	if !ok {
		return false
	}
	if now.Sub(last) < time.Duration(window.ThresholdDays)*day {
		return false
	}
	if lastReminderAt != nil && now.Sub(*lastReminderAt) < time.Duration(window.SuppressionDays)*day {
		return false
	}
	return true
}
