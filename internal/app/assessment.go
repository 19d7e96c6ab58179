package app

import (
	"context"
	"strings"

	"innovation/engine/internal/actor"
	"innovation/engine/internal/events"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/store"
	"innovation/engine/internal/util"
)

type StartAssessmentInput struct {
	IsReassessment bool
}

// CreateInnovation registers a new innovation in CREATED.
func (s *Service) CreateInnovation(ctx context.Context, a actor.Context, name string) (string, error) {
	if err := validateActor(a); err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validation("innovation name is required")
	}
	item := store.Innovation{
		ID:            util.NewID("inn"),
		Name:          name,
		Status:        lifecycle.InnovationCreated,
		CreatedByRole: a.RoleID,
	}
	if err := s.store.InsertInnovation(ctx, item); err != nil {
		return "", mapStoreError(err, "innovation")
	}
	return item.ID, nil
}

// SubmitInnovation moves a CREATED innovation into the assessment queue.
func (s *Service) SubmitInnovation(ctx context.Context, a actor.Context, innovationID string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		if innovation.Status != lifecycle.InnovationCreated {
			return invalidTransition("only CREATED innovations can be submitted", map[string]any{"status": innovation.Status})
		}
		if err := q.UpdateInnovationStatus(ctx, innovationID, innovation.Status, lifecycle.InnovationWaitingAssessment, a.RoleID); err != nil {
			return mapStoreError(err, "innovation")
		}
		out.touch(innovationID)
		return nil
	})
}

// StartAssessment opens the next assessment in the chain. A reassessment starts
// a new major version; otherwise the first assessment is major 1.0 and later
// ones refine the current major as minor versions.
func (s *Service) StartAssessment(ctx context.Context, a actor.Context, innovationID string, input StartAssessmentInput) (string, error) {
	if err := validateActor(a); err != nil {
		return "", err
	}
	var assessmentID string
	err := s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		if isClosedInnovation(innovation.Status) {
			return invalidTransition("cannot assess a closed innovation", map[string]any{"status": innovation.Status})
		}
		open, err := q.GetOpenAssessment(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "assessment")
		}
		if open != nil {
			return conflict("assessment %s is still in progress", open.ID)
		}
		latest, err := q.GetLatestAssessment(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "assessment")
		}

		now := s.now()
		next := store.Assessment{
			ID:            util.NewID("asm"),
			InnovationID:  innovationID,
			StartedAt:     now,
			CreatedByRole: a.RoleID,
		}
		switch {
		case input.IsReassessment:
			if latest == nil {
				return validation("reassessment requires a finished prior assessment")
			}
			next.MajorVersion = latest.MajorVersion + 1
			previous := latest.ID
			if innovation.CurrentMajorAssessmentID != nil {
				previous = *innovation.CurrentMajorAssessmentID
			}
			next.PreviousAssessmentID = &previous
		case latest == nil:
			next.MajorVersion = 1
		default:
			next.MajorVersion = latest.MajorVersion
			next.MinorVersion = latest.MinorVersion + 1
			next.PreviousAssessmentID = &latest.ID
		}

		if err := q.InsertAssessment(ctx, next); err != nil {
			return mapStoreError(err, "assessment")
		}
		if next.IsMajor() && innovation.Status != lifecycle.InnovationNeedsAssessment {
			if err := q.UpdateInnovationStatus(ctx, innovationID, innovation.Status, lifecycle.InnovationNeedsAssessment, a.RoleID); err != nil {
				return mapStoreError(err, "innovation")
			}
		}
		out.touch(innovationID)
		assessmentID = next.ID

		s.log.Info().
			Str("innovation_id", innovationID).
			Str("assessment_id", next.ID).
			Int("major_version", next.MajorVersion).
			Int("minor_version", next.MinorVersion).
			Msg("assessment started")
		return nil
	})
	if err != nil {
		return "", err
	}
	return assessmentID, nil
}

// RecordAssessmentRecommendations replaces the units an unfinished assessment
// recommends for support.
func (s *Service) RecordAssessmentRecommendations(ctx context.Context, a actor.Context, assessmentID string, unitIDs []string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	unitIDs = uniqueStrings(unitIDs)
	return s.inTx(ctx, func(q queries, out *outbox) error {
		assessment, err := q.GetAssessment(ctx, assessmentID)
		if err != nil {
			return mapStoreError(err, "assessment")
		}
		if assessment.IsFinished() {
			return invalidTransition("recommendations are fixed once the assessment is finished", map[string]any{"assessmentId": assessmentID})
		}
		if err := ensureUnitsExist(ctx, q, unitIDs); err != nil {
			return err
		}
		if err := q.ReplaceAssessmentUnits(ctx, assessmentID, unitIDs); err != nil {
			return mapStoreError(err, "assessment units")
		}
		return nil
	})
}

// FinishAssessment closes an assessment. Finishing a minor version only moves
// the current assessment pointer. Finishing a major version opens a new support
// round: prior rows are superseded, the recommended units are logged as
// suggestions and the suggestion aggregator runs for the round.
func (s *Service) FinishAssessment(ctx context.Context, a actor.Context, assessmentID string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		assessment, err := q.GetAssessment(ctx, assessmentID)
		if err != nil {
			return mapStoreError(err, "assessment")
		}
		if assessment.IsFinished() {
			return invalidTransition("assessment is already finished", map[string]any{"assessmentId": assessmentID})
		}
		innovation, err := q.LockInnovation(ctx, assessment.InnovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}

		now := s.now()
		if err := q.FinishAssessment(ctx, assessmentID, now, a.RoleID); err != nil {
			return mapStoreError(err, "assessment")
		}
		out.touch(innovation.ID)

		if !assessment.IsMajor() {
			if err := q.SetInnovationAssessmentPointers(ctx, innovation.ID, assessment.ID, nil, a.RoleID); err != nil {
				return mapStoreError(err, "innovation")
			}
			s.log.Info().Str("assessment_id", assessmentID).Msg("minor assessment finished")
			return nil
		}

		if err := q.SetInnovationAssessmentPointers(ctx, innovation.ID, assessment.ID, &assessment.ID, a.RoleID); err != nil {
			return mapStoreError(err, "innovation")
		}
		if innovation.Status != lifecycle.InnovationInProgress && !isClosedInnovation(innovation.Status) {
			if err := q.UpdateInnovationStatus(ctx, innovation.ID, innovation.Status, lifecycle.InnovationInProgress, a.RoleID); err != nil {
				return mapStoreError(err, "innovation")
			}
		}

		if err := s.supersedePriorRound(ctx, q, out, innovation.ID, assessment.ID, nil, a, now); err != nil {
			return err
		}

		units, err := q.ListAssessmentUnits(ctx, assessment.ID)
		if err != nil {
			return mapStoreError(err, "assessment units")
		}
		for _, unitID := range units {
			if err := appendSupportEvent(ctx, q, store.SupportEvent{
				ID:                 util.NewID("slog"),
				InnovationID:       innovation.ID,
				OrganisationUnitID: ptr(unitID),
				Type:               lifecycle.EventAssessmentSuggestion,
				MajorAssessmentID:  ptr(assessment.ID),
				ContextID:          assessment.ID,
				CreatedBy:          a.UserID,
				CreatedByRole:      a.RoleID,
				CreatedAt:          now,
			}); err != nil {
				return err
			}
		}

		if _, err := s.aggregate(ctx, q, out, innovation.ID, assessment.ID, a, now); err != nil {
			return err
		}

		out.emit(events.Event{
			Type:              events.TypeAssessmentFinished,
			InnovationID:      innovation.ID,
			MajorAssessmentID: assessment.ID,
			ActorRoleID:       a.RoleID,
			OccurredAt:        now,
		})
		s.log.Info().
			Str("innovation_id", innovation.ID).
			Str("assessment_id", assessmentID).
			Int("major_version", assessment.MajorVersion).
			Int("recommended_units", len(units)).
			Msg("major assessment finished")
		return nil
	})
}

// CurrentMajorAssessment returns the id of the assessment scoping the current
// support round.
func (s *Service) CurrentMajorAssessment(ctx context.Context, innovationID string) (string, error) {
	innovation, err := s.store.GetInnovation(ctx, innovationID)
	if err != nil {
		return "", mapStoreError(err, "innovation")
	}
	if innovation.CurrentMajorAssessmentID == nil {
		return "", notFound("innovation %s has no finished major assessment", innovationID)
	}
	return *innovation.CurrentMajorAssessmentID, nil
}

// RequestReassessment flags the current round for reassessment and returns the
// innovation to the assessment queue.
func (s *Service) RequestReassessment(ctx context.Context, a actor.Context, innovationID, reason string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		latest, err := q.GetLatestAssessment(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "assessment")
		}
		if latest == nil || !latest.IsFinished() || innovation.CurrentMajorAssessmentID == nil {
			return validation("reassessment requires a finished prior assessment")
		}
		if innovation.Status != lifecycle.InnovationInProgress && innovation.Status != lifecycle.InnovationWaitingAssessment {
			return invalidTransition("reassessment can only be requested while support is in progress", map[string]any{"status": innovation.Status})
		}

		if err := q.InsertReassessmentRequest(ctx, store.ReassessmentRequest{
			ID:            util.NewID("rar"),
			InnovationID:  innovationID,
			AssessmentID:  *innovation.CurrentMajorAssessmentID,
			Reason:        strings.TrimSpace(reason),
			CreatedByRole: a.RoleID,
			CreatedAt:     s.now(),
		}); err != nil {
			return mapStoreError(err, "reassessment request")
		}
		if innovation.Status == lifecycle.InnovationInProgress {
			if err := q.UpdateInnovationStatus(ctx, innovationID, innovation.Status, lifecycle.InnovationWaitingAssessment, a.RoleID); err != nil {
				return mapStoreError(err, "innovation")
			}
		}
		out.touch(innovationID)
		return nil
	})
}

// ArchiveInnovation archives the innovation and closes every live support with
// reason ARCHIVE.
func (s *Service) ArchiveInnovation(ctx context.Context, a actor.Context, innovationID string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		if isClosedInnovation(innovation.Status) {
			return invalidTransition("innovation is already closed", map[string]any{"status": innovation.Status})
		}
		supports, err := q.ListMostRecentSupports(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "supports")
		}
		now := s.now()
		reason := lifecycle.CloseArchive
		for _, support := range supports {
			if !support.IsLive() {
				continue
			}
			if _, err := s.applyTransition(ctx, q, out, support, lifecycle.SupportClosed, &reason, nil, a, now); err != nil {
				return err
			}
		}
		if err := q.UpdateInnovationStatus(ctx, innovationID, innovation.Status, lifecycle.InnovationArchived, a.RoleID); err != nil {
			return mapStoreError(err, "innovation")
		}
		out.touch(innovationID)
		s.log.Info().Str("innovation_id", innovationID).Msg("innovation archived")
		return nil
	})
}

func ensureUnitsExist(ctx context.Context, q queries, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}
	units, err := q.ListOrganisationUnits(ctx, unitIDs)
	if err != nil {
		return mapStoreError(err, "organisation units")
	}
	if len(units) == len(unitIDs) {
		return nil
	}
	found := make(map[string]struct{}, len(units))
	for _, unit := range units {
		found[unit.ID] = struct{}{}
	}
	for _, id := range unitIDs {
		if _, ok := found[id]; !ok {
			return notFound("organisation unit %s not found", id)
		}
	}
	return nil
}
