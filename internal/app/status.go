package app

import (
	"context"
	"errors"
	"time"

	"innovation/engine/internal/calendar"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/projection"
	"innovation/engine/internal/store"
)

var ErrProjectionsDisabled = errors.New("projection cache is not configured")

// GroupedStatus returns the innovation's user-facing status, served from the
// projection cache when it holds a fresh entry.
func (s *Service) GroupedStatus(ctx context.Context, innovationID string) (lifecycle.GroupedStatus, error) {
	entry, err := s.projectionFor(ctx, innovationID)
	if err != nil {
		return "", err
	}
	return entry.GroupedStatus, nil
}

// InnovationProgress tallies the current round's supports per status.
func (s *Service) InnovationProgress(ctx context.Context, innovationID string) (lifecycle.Progress, error) {
	entry, err := s.projectionFor(ctx, innovationID)
	if err != nil {
		return lifecycle.Progress{}, err
	}
	return entry.Progress, nil
}

func (s *Service) projectionFor(ctx context.Context, innovationID string) (projection.Entry, error) {
	cacheable := false
	var generation int64
	if s.projections != nil {
		lookup, err := s.projections.Get(ctx, innovationID)
		if err != nil {
			s.log.Warn().Err(err).Str("innovation_id", innovationID).Msg("read projection failed")
		} else if lookup.Found {
			return lookup.Entry, nil
		} else {
			cacheable = true
			generation = lookup.Generation
		}
	}
	entry, err := s.computeProjection(ctx, innovationID)
	if err != nil {
		return projection.Entry{}, err
	}
	if cacheable {
		stored, err := s.projections.Set(ctx, entry, generation)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("innovation_id", innovationID).Msg("store projection failed")
		case !stored:
			s.log.Debug().Str("innovation_id", innovationID).Msg("projection changed while computing; not cached")
		}
	}
	return entry, nil
}

// computeProjection derives the grouped status and progress from the canonical
// tables.
func (s *Service) computeProjection(ctx context.Context, innovationID string) (projection.Entry, error) {
	innovation, err := s.store.GetInnovation(ctx, innovationID)
	if err != nil {
		return projection.Entry{}, mapStoreError(err, "innovation")
	}
	input := lifecycle.GroupedStatusInput{
		InnovationStatus:         innovation.Status,
		CurrentMajorAssessmentID: deref(innovation.CurrentMajorAssessmentID),
	}
	if input.CurrentMajorAssessmentID != "" {
		major, err := s.store.GetAssessment(ctx, input.CurrentMajorAssessmentID)
		if err != nil {
			return projection.Entry{}, mapStoreError(err, "assessment")
		}
		input.CurrentMajorVersion = major.MajorVersion
		requested, err := s.store.HasReassessmentRequest(ctx, innovationID, input.CurrentMajorAssessmentID)
		if err != nil {
			return projection.Entry{}, mapStoreError(err, "reassessment request")
		}
		input.ReassessmentRequested = requested
	}
	supports, err := s.store.ListMostRecentSupports(ctx, innovationID)
	if err != nil {
		return projection.Entry{}, mapStoreError(err, "supports")
	}
	input.Supports = make([]lifecycle.SupportSnapshot, 0, len(supports))
	for _, support := range supports {
		input.Supports = append(input.Supports, support.Snapshot())
	}

	return projection.Entry{
		InnovationID:  innovationID,
		GroupedStatus: lifecycle.ResolveGroupedStatus(input),
		Progress:      lifecycle.ComputeProgress(input.CurrentMajorAssessmentID, input.Supports),
		ComputedAt:    s.now(),
	}, nil
}

// RebuildProjections recomputes the cached entry of every innovation.
func (s *Service) RebuildProjections(ctx context.Context) (int, error) {
	if s.projections == nil {
		return 0, ErrProjectionsDisabled
	}
	ids, err := s.store.ListInnovationIDs(ctx)
	if err != nil {
		return 0, mapStoreError(err, "innovations")
	}
	written, err := s.projections.Rebuild(ctx, ids, s.cfg.ProjectionParallelism, s.computeProjection)
	if err != nil {
		return written, err
	}
	s.log.Info().Int("innovations", written).Msg("projections rebuilt")
	return written, nil
}

type SupportKPI struct {
	SupportID          string
	OrganisationUnitID string
	Status             lifecycle.SupportStatus
	calendar.EngagementKPI
}

// SupportKPIs reports suggestion-to-engagement figures for the current round.
func (s *Service) SupportKPIs(ctx context.Context, innovationID string) ([]SupportKPI, error) {
	innovation, err := s.store.GetInnovation(ctx, innovationID)
	if err != nil {
		return nil, mapStoreError(err, "innovation")
	}
	if innovation.CurrentMajorAssessmentID == nil {
		return []SupportKPI{}, nil
	}
	supports, err := s.store.ListMostRecentSupports(ctx, innovationID)
	if err != nil {
		return nil, mapStoreError(err, "supports")
	}
	now := s.now()
	kpis := make([]SupportKPI, 0, len(supports))
	for _, support := range supports {
		if support.MajorAssessmentID != *innovation.CurrentMajorAssessmentID {
			continue
		}
		kpis = append(kpis, supportKPI(support, s.cfg.SuggestedDueWorkdays, now))
	}
	return kpis, nil
}

func supportKPI(support store.SupportRecord, dueWorkdays int, now time.Time) SupportKPI {
	suggestedAt := support.CreatedAt
	if support.StartedAt != nil {
		suggestedAt = *support.StartedAt
	}
	return SupportKPI{
		SupportID:          support.ID,
		OrganisationUnitID: support.OrganisationUnitID,
		Status:             support.Status,
		EngagementKPI: calendar.ComputeEngagementKPI(calendar.KPIInput{
			SuggestedAt:        suggestedAt,
			EngagedAt:          support.EngagedAt,
			FinishedAt:         support.FinishedAt,
			AwaitingEngagement: support.Status == lifecycle.SupportSuggested,
			LastStatusChange:   support.StatusChangedAt,
			DueWorkdays:        dueWorkdays,
		}, now),
	}
}
