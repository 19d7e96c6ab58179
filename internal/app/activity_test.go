package app

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/store"
)

func daysBefore(days int) time.Time {
	return day0.Add(-time.Duration(days) * 24 * time.Hour)
}

// seedIdleFixture lays out supports of inn_1 that exercise each idle rule.
func seedIdleFixture(h *harness) {
	h.store.state.innovations["inn_1"] = store.Innovation{ID: "inn_1", Name: "Fixture", Status: lifecycle.InnovationInProgress}
	seed := []struct {
		id, unit string
		status   lifecycle.SupportStatus
		days     int
		recent   bool
	}{
		{"sup_01", "unit_a", lifecycle.SupportEngaging, 100, true},
		{"sup_02", "unit_b", lifecycle.SupportWaiting, 100, true},
		{"sup_03", "unit_c", lifecycle.SupportEngaging, 100, true},
		{"sup_04", "unit_d", lifecycle.SupportEngaging, 100, true},
		{"sup_05", "unit_e", lifecycle.SupportSuggested, 100, true},
		{"sup_06", "unit_f", lifecycle.SupportEngaging, 100, false},
		{"sup_07", "unit_g", lifecycle.SupportEngaging, 95, true},
	}
	for _, s := range seed {
		h.store.putSupport(store.SupportRecord{
			ID:                 s.id,
			InnovationID:       "inn_1",
			OrganisationUnitID: s.unit,
			Status:             s.status,
			MajorAssessmentID:  "asm_1",
			IsMostRecent:       s.recent,
			StatusChangedAt:    daysBefore(s.days),
		})
	}
	h.store.state.reminders = append(h.store.state.reminders,
		store.Reminder{InnovationID: "inn_1", OrganisationUnitID: "unit_b", SentAt: daysBefore(10)},
		store.Reminder{InnovationID: "inn_1", OrganisationUnitID: "unit_d", SentAt: daysBefore(40)},
	)
	h.store.state.signals = append(h.store.state.signals,
		store.ActivitySignal{SupportID: "sup_03", InnovationID: "inn_1", OrganisationUnitID: "unit_c", Kind: lifecycle.ActivityMessage, OccurredAt: daysBefore(5)},
	)
}

func collectIdle(t *testing.T, h *harness, query IdleQuery) []string {
	t.Helper()
	ids := make([]string, 0)
	for idle, err := range h.svc.IdleSupports(h.ctx, query) {
		if err != nil {
			t.Fatalf("IdleSupports: %v", err)
		}
		ids = append(ids, idle.SupportID)
	}
	return ids
}

func TestIdleSupports(t *testing.T) {
	h := newHarness(t)
	seedIdleFixture(h)

	var cursors []string
	h.store.listIdleFn = func(after string, limit int) {
		if limit != 2 {
			t.Errorf("expected page size 2, got %d", limit)
		}
		cursors = append(cursors, after)
	}

	got := collectIdle(t, h, IdleQuery{})
	if diff := cmp.Diff([]string{"sup_01", "sup_04", "sup_07"}, got); diff != "" {
		t.Fatalf("idle supports mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "sup_02", "sup_04"}, cursors); diff != "" {
		t.Fatalf("page cursors mismatch (-want +got):\n%s", diff)
	}

	// Ranging again restarts the scan.
	if again := collectIdle(t, h, IdleQuery{}); len(again) != 3 {
		t.Fatalf("expected a restarted scan to yield 3 supports, got %v", again)
	}
}

func TestIdleSupportsStopsEarly(t *testing.T) {
	h := newHarness(t)
	seedIdleFixture(h)
	pages := 0
	h.store.listIdleFn = func(string, int) { pages++ }

	for idle, err := range h.svc.IdleSupports(h.ctx, IdleQuery{}) {
		if err != nil {
			t.Fatalf("IdleSupports: %v", err)
		}
		if idle.SupportID != "sup_01" || !idle.LastActivityAt.Equal(daysBefore(100)) {
			t.Fatalf("unexpected first idle support %+v", idle)
		}
		break
	}
	if pages != 1 {
		t.Fatalf("expected a single page read, got %d", pages)
	}
}

func TestIdleSupportsQueryOverrides(t *testing.T) {
	h := newHarness(t)
	seedIdleFixture(h)

	tests := []struct {
		name  string
		query IdleQuery
		want  []string
	}{
		{"resume after cursor", IdleQuery{After: "sup_01"}, []string{"sup_04", "sup_07"}},
		{"longer threshold", IdleQuery{ThresholdDays: 120}, []string{}},
		{"shorter suppression", IdleQuery{SuppressionDays: 5}, []string{"sup_01", "sup_02", "sup_04", "sup_07"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, collectIdle(t, h, tt.query)); diff != "" {
				t.Fatalf("idle supports mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestActivityAndRemindersSuppressIdleness(t *testing.T) {
	h := newHarness(t)
	seedIdleFixture(h)

	if err := h.svc.MarkReminderSent(h.ctx, "inn_1", "unit_a", time.Time{}); err != nil {
		t.Fatalf("MarkReminderSent: %v", err)
	}
	if err := h.svc.RecordActivity(h.ctx, "sup_07", "TASK", time.Time{}); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	if diff := cmp.Diff([]string{"sup_04"}, collectIdle(t, h, IdleQuery{})); diff != "" {
		t.Fatalf("idle supports mismatch (-want +got):\n%s", diff)
	}

	if err := h.svc.RecordActivity(h.ctx, "sup_01", "CALL", time.Time{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown kind, got %v", err)
	}
	if err := h.svc.RecordActivity(h.ctx, "sup_missing", "MESSAGE", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown support, got %v", err)
	}
	if err := h.svc.MarkReminderSent(h.ctx, "inn_missing", "unit_a", time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown innovation, got %v", err)
	}
}
