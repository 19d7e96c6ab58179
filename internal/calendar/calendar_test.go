package calendar

import (
	"testing"
	"time"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return parsed
}

func TestWorkdaysBetween(t *testing.T) {
	cases := []struct {
		name  string
		start string
		end   string
		want  int
	}{
		{name: "sunday to monday", start: "2023-01-01", end: "2023-01-02", want: 0},
		{name: "same day", start: "2023-01-04", end: "2023-01-04", want: 0},
		{name: "monday to tuesday", start: "2023-01-02", end: "2023-01-03", want: 1},
		{name: "monday to next monday", start: "2023-01-02", end: "2023-01-09", want: 5},
		{name: "friday to monday", start: "2023-01-06", end: "2023-01-09", want: 1},
		{name: "saturday to sunday", start: "2023-01-07", end: "2023-01-08", want: 0},
		{name: "three weeks and two days", start: "2023-01-02", end: "2023-01-25", want: 17},
		{name: "reversed range", start: "2023-01-09", end: "2023-01-02", want: -5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WorkdaysBetween(day(t, tc.start), day(t, tc.end)); got != tc.want {
				t.Fatalf("WorkdaysBetween(%s, %s) = %d, want %d", tc.start, tc.end, got, tc.want)
			}
		})
	}
}

func TestAddWorkDays(t *testing.T) {
	cases := []struct {
		name  string
		start string
		n     int
		want  string
	}{
		{name: "sunday plus five", start: "2023-01-01", n: 5, want: "2023-01-06"},
		{name: "sunday minus one", start: "2023-01-01", n: -1, want: "2022-12-30"},
		{name: "friday plus one", start: "2023-01-06", n: 1, want: "2023-01-09"},
		{name: "monday plus six", start: "2023-01-02", n: 6, want: "2023-01-10"},
		{name: "zero keeps weekend date", start: "2023-01-07", n: 0, want: "2023-01-07"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AddWorkDays(day(t, tc.start), tc.n).Format("2006-01-02")
			if got != tc.want {
				t.Fatalf("AddWorkDays(%s, %d) = %s, want %s", tc.start, tc.n, got, tc.want)
			}
		})
	}
}

func TestAddWorkDaysPreservesTimeOfDay(t *testing.T) {
	start := time.Date(2023, 1, 2, 14, 30, 0, 0, time.UTC)
	got := AddWorkDays(start, 1)
	if got.Hour() != 14 || got.Minute() != 30 {
		t.Fatalf("expected time of day preserved, got %s", got)
	}
}

func TestSuggestedDueDate(t *testing.T) {
	got := SuggestedDueDate(day(t, "2023-01-02"), 0).Format("2006-01-02")
	if got != "2023-01-10" {
		t.Fatalf("expected default six workdays to land on 2023-01-10, got %s", got)
	}
}

func TestComputeEngagementKPI(t *testing.T) {
	suggested := day(t, "2023-01-01")
	engaged := day(t, "2023-01-06")

	kpi := ComputeEngagementKPI(KPIInput{
		SuggestedAt:      suggested,
		EngagedAt:        &engaged,
		LastStatusChange: engaged,
		DueWorkdays:      6,
	}, day(t, "2023-02-01"))
	if kpi.WorkdaysToEngage != 4 {
		t.Errorf("expected 4 workdays (Mon-Thu), got %d", kpi.WorkdaysToEngage)
	}
	if kpi.Overdue || kpi.DueDate != nil {
		t.Errorf("engaged support must have no due date, got %+v", kpi)
	}

	pending := ComputeEngagementKPI(KPIInput{
		SuggestedAt:        suggested,
		AwaitingEngagement: true,
		LastStatusChange:   suggested,
		DueWorkdays:        6,
	}, day(t, "2023-01-16"))
	if pending.WorkdaysToEngage != 10 {
		t.Errorf("expected 10 workdays while pending, got %d", pending.WorkdaysToEngage)
	}
	if pending.DueDate == nil || !pending.Overdue {
		t.Errorf("expected overdue pending suggestion, got %+v", pending)
	}
}

func TestComputeEngagementKPIDeclinedSuggestion(t *testing.T) {
	suggested := day(t, "2023-01-01")
	declined := day(t, "2023-01-03")

	kpi := ComputeEngagementKPI(KPIInput{
		SuggestedAt:      suggested,
		FinishedAt:       &declined,
		LastStatusChange: declined,
		DueWorkdays:      6,
	}, day(t, "2023-03-01"))
	if kpi.WorkdaysToEngage != 1 {
		t.Errorf("expected the span to stop at the decline (1 workday), got %d", kpi.WorkdaysToEngage)
	}
	if kpi.Overdue {
		t.Error("declined suggestion must not be overdue")
	}
	if kpi.DueDate != nil {
		t.Errorf("declined suggestion must have no due date, got %s", kpi.DueDate)
	}
}
