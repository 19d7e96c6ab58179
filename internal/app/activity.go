package app

import (
	"context"
	"iter"
	"time"

	"innovation/engine/internal/activity"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/store"
)

type IdleQuery struct {
	ThresholdDays   int
	SuppressionDays int
	// After resumes the scan past this support id.
	After string
}

type IdleSupport struct {
	SupportID          string
	InnovationID       string
	OrganisationUnitID string
	Status             lifecycle.SupportStatus
	LastActivityAt     time.Time
}

// IdleSupports lazily pages through live engaging/waiting supports in id order
// and yields those idle under the query's window. Each range over the sequence
// restarts the scan with a fresh clock reading.
func (s *Service) IdleSupports(ctx context.Context, query IdleQuery) iter.Seq2[IdleSupport, error] {
	window := activity.Window{
		ThresholdDays:   query.ThresholdDays,
		SuppressionDays: query.SuppressionDays,
	}
	if window.ThresholdDays <= 0 {
		window.ThresholdDays = s.cfg.IdleThresholdDays
	}
	if window.SuppressionDays <= 0 {
		window.SuppressionDays = s.cfg.IdleSuppressionDays
	}
	pageSize := s.cfg.IdlePageSize
	if pageSize <= 0 {
		pageSize = 200
	}

	return func(yield func(IdleSupport, error) bool) {
		now := s.now()
		cursor := query.After
		for {
			page, err := s.store.ListIdleCandidates(ctx, cursor, pageSize)
			if err != nil {
				yield(IdleSupport{}, mapStoreError(err, "idle candidates"))
				return
			}
			for _, candidate := range page {
				signals := activity.Signals{
					LatestMessageAt:      candidate.LatestMessageAt,
					LatestStatusChangeAt: candidate.LatestStatusChangeAt,
					LatestTaskUpdateAt:   candidate.LatestTaskUpdateAt,
				}
				if !activity.IsIdle(now, signals, candidate.LastReminderAt, window) {
					continue
				}
				last, _ := signals.LastActivity()
				if !yield(IdleSupport{
					SupportID:          candidate.SupportID,
					InnovationID:       candidate.InnovationID,
					OrganisationUnitID: candidate.OrganisationUnitID,
					Status:             candidate.Status,
					LastActivityAt:     last,
				}, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			cursor = page[len(page)-1].SupportID
		}
	}
}

// RecordActivity stores a message or task signal for the support's
// (innovation, unit) pair. A zero at means now.
func (s *Service) RecordActivity(ctx context.Context, supportID, kind string, at time.Time) error {
	activityKind, ok := lifecycle.ParseActivityKind(kind)
	if !ok {
		return validation("activity kind %q is not one of MESSAGE, TASK", kind)
	}
	support, err := s.store.GetSupport(ctx, supportID)
	if err != nil {
		return mapStoreError(err, "support")
	}
	if at.IsZero() {
		at = s.now()
	}
	if err := s.store.InsertActivitySignal(ctx, store.ActivitySignal{
		SupportID:          support.ID,
		InnovationID:       support.InnovationID,
		OrganisationUnitID: support.OrganisationUnitID,
		Kind:               activityKind,
		OccurredAt:         at,
	}); err != nil {
		return mapStoreError(err, "activity signal")
	}
	return nil
}

// MarkReminderSent logs an idle reminder, suppressing the pair for the
// suppression window.
func (s *Service) MarkReminderSent(ctx context.Context, innovationID, unitID string, at time.Time) error {
	if _, err := s.store.GetInnovation(ctx, innovationID); err != nil {
		return mapStoreError(err, "innovation")
	}
	if _, err := s.store.GetOrganisationUnit(ctx, unitID); err != nil {
		return mapStoreError(err, "organisation unit")
	}
	if at.IsZero() {
		at = s.now()
	}
	if err := s.store.InsertReminder(ctx, store.Reminder{
		InnovationID:       innovationID,
		OrganisationUnitID: unitID,
		SentAt:             at,
	}); err != nil {
		return mapStoreError(err, "reminder")
	}
	s.log.Debug().Str("innovation_id", innovationID).Str("organisation_unit_id", unitID).Msg("idle reminder recorded")
	return nil
}
