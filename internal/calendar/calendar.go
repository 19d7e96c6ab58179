// Package calendar implements the business-day arithmetic used for support due
// dates and suggestion-to-engagement KPIs. Weekends are Saturday and Sunday;
// public holidays are not modelled.
package calendar

import "time"

// DefaultSuggestedDueWorkdays is how long a unit has to pick up a suggestion.
const DefaultSuggestedDueWorkdays = 6

func isWeekend(day time.Weekday) bool {
	return day == time.Saturday || day == time.Sunday
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WorkdaysBetween counts the weekdays in the half-open day range [start, end).
// A reversed range yields the negated count.
func WorkdaysBetween(start, end time.Time) int {
	from, to := dateOf(start), dateOf(end)
	if to.Before(from) {
		return -WorkdaysBetween(end, start)
	}

	days := int(to.Sub(from).Hours() / 24)
	count := (days / 7) * 5
	cursor := from.AddDate(0, 0, (days/7)*7)
	for cursor.Before(to) {
		if !isWeekend(cursor.Weekday()) {
			count++
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return count
}

// AddWorkDays moves n weekdays away from date, backwards when n is negative.
// The time of day is preserved; n == 0 returns date unchanged.
func AddWorkDays(date time.Time, n int) time.Time {
	step := 1
	remaining := n
	if n < 0 {
		step = -1
		remaining = -n
	}
	result := date
	for remaining > 0 {
		result = result.AddDate(0, 0, step)
		if !isWeekend(result.Weekday()) {
			remaining--
		}
	}
	return result
}

// SuggestedDueDate is the date by which a SUGGESTED support should be picked up.
func SuggestedDueDate(lastStatusChange time.Time, workdays int) time.Time {
	if workdays <= 0 {
		workdays = DefaultSuggestedDueWorkdays
	}
	return AddWorkDays(lastStatusChange, workdays)
}

type EngagementKPI struct {
	SuggestedAt      time.Time
	EngagedAt        *time.Time
	WorkdaysToEngage int
	// DueDate is nil once the support left SUGGESTED.
	DueDate *time.Time
	Overdue bool
}

type KPIInput struct {
	SuggestedAt time.Time
	EngagedAt   *time.Time
	FinishedAt  *time.Time
	// AwaitingEngagement is true while the support is still SUGGESTED.
	AwaitingEngagement bool
	LastStatusChange   time.Time
	DueWorkdays        int
}

// ComputeEngagementKPI measures suggestion-to-engagement in workdays. The span
// ends at engagement, or at the finish of a support that was declined without
// engaging, and otherwise runs until now. Only a support still awaiting
// engagement has a due date and can be overdue.
func ComputeEngagementKPI(in KPIInput, now time.Time) EngagementKPI {
	end := now
	switch {
	case in.EngagedAt != nil:
		end = *in.EngagedAt
	case in.FinishedAt != nil:
		end = *in.FinishedAt
	}
	kpi := EngagementKPI{
		SuggestedAt:      in.SuggestedAt,
		EngagedAt:        in.EngagedAt,
		WorkdaysToEngage: WorkdaysBetween(in.SuggestedAt, end),
	}
	if in.AwaitingEngagement {
		due := SuggestedDueDate(in.LastStatusChange, in.DueWorkdays)
		kpi.DueDate = &due
		kpi.Overdue = now.After(due)
	}
	return kpi
}
