package app

import (
	"context"
	"time"

	"innovation/engine/internal/actor"
	"innovation/engine/internal/events"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/store"
	"innovation/engine/internal/util"
)

type SupportView struct {
	store.SupportRecord
	AssignedUserRoleIDs []string
}

type StartSupportInput struct {
	InnovationID        string
	OrganisationUnitID  string
	Status              lifecycle.SupportStatus
	AssignedUserRoleIDs []string
}

// StartEngagement moves a SUGGESTED or WAITING support to ENGAGING and assigns
// the given user roles to it.
func (s *Service) StartEngagement(ctx context.Context, a actor.Context, supportID string, assignedUserRoleIDs []string) error {
	if assignedUserRoleIDs == nil {
		assignedUserRoleIDs = []string{}
	}
	return s.transition(ctx, a, supportID, lifecycle.SupportEngaging, nil, uniqueStrings(assignedUserRoleIDs))
}

func (s *Service) Pause(ctx context.Context, a actor.Context, supportID string) error {
	return s.transition(ctx, a, supportID, lifecycle.SupportWaiting, nil, nil)
}

// Close ends a live support. The row stays most recent as the unit's tombstone
// for the round.
func (s *Service) Close(ctx context.Context, a actor.Context, supportID, reason string) error {
	closeReason, ok := lifecycle.ParseCloseReason(reason)
	if !ok {
		return validation("close reason %q is not one of STOP_SHARE, ARCHIVE, SUPPORT_COMPLETE", reason)
	}
	return s.transition(ctx, a, supportID, lifecycle.SupportClosed, &closeReason, nil)
}

func (s *Service) MarkUnsuitable(ctx context.Context, a actor.Context, supportID string) error {
	return s.transition(ctx, a, supportID, lifecycle.SupportUnsuitable, nil, nil)
}

func (s *Service) transition(ctx context.Context, a actor.Context, supportID string, to lifecycle.SupportStatus, reason *lifecycle.CloseReason, userRoleIDs []string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		support, err := q.GetSupport(ctx, supportID)
		if err != nil {
			return mapStoreError(err, "support")
		}
		_, err = s.applyTransition(ctx, q, out, support, to, reason, userRoleIDs, a, s.now())
		return err
	})
}

// applyTransition guards and persists one status change of a loaded support.
// A nil userRoleIDs leaves the assignment untouched.
func (s *Service) applyTransition(ctx context.Context, q queries, out *outbox, support store.SupportRecord, to lifecycle.SupportStatus, reason *lifecycle.CloseReason, userRoleIDs []string, a actor.Context, now time.Time) (store.SupportRecord, error) {
	guard := lifecycle.CanTransition(lifecycle.TransitionContext{
		SupportID:    support.ID,
		From:         support.Status,
		To:           to,
		IsMostRecent: support.IsMostRecent,
	})
	if !guard.Allowed {
		return store.SupportRecord{}, invalidTransition(guard.Reason, map[string]any{
			"supportId": support.ID,
			"from":      support.Status,
			"to":        to,
		})
	}

	change := store.SupportTransition{
		SupportID:     support.ID,
		From:          support.Status,
		To:            to,
		UpdatedByRole: a.RoleID,
		At:            now,
	}
	if to == lifecycle.SupportEngaging || to == lifecycle.SupportWaiting {
		if support.StartedAt == nil {
			change.StartedAt = &now
		}
		if support.EngagedAt == nil {
			change.EngagedAt = &now
		}
	}
	if to.IsTerminal() {
		change.FinishedAt = &now
		if to == lifecycle.SupportClosed {
			change.CloseReason = reason
		}
	}
	if err := q.TransitionSupport(ctx, change); err != nil {
		return store.SupportRecord{}, mapStoreError(err, "support "+support.ID)
	}

	from := support.Status
	support.Status = to
	if change.StartedAt != nil {
		support.StartedAt = change.StartedAt
	}
	if change.EngagedAt != nil {
		support.EngagedAt = change.EngagedAt
	}
	support.FinishedAt = change.FinishedAt
	support.CloseReason = change.CloseReason
	support.StatusChangedAt = now
	support.UpdatedByRole = a.RoleID

	if userRoleIDs != nil {
		if err := q.ReplaceSupportUsers(ctx, support.ID, userRoleIDs); err != nil {
			return store.SupportRecord{}, mapStoreError(err, "support users")
		}
	}
	if err := recordHistory(ctx, q, support, now, a.RoleID); err != nil {
		return store.SupportRecord{}, err
	}
	if err := appendSupportEvent(ctx, q, store.SupportEvent{
		ID:                 util.NewID("slog"),
		InnovationID:       support.InnovationID,
		OrganisationUnitID: ptr(support.OrganisationUnitID),
		Type:               lifecycle.EventStatusUpdate,
		MajorAssessmentID:  ptr(support.MajorAssessmentID),
		ContextID:          support.ID,
		CreatedBy:          a.UserID,
		CreatedByRole:      a.RoleID,
		CreatedAt:          now,
	}); err != nil {
		return store.SupportRecord{}, err
	}

	event := events.Event{
		Type:               events.TypeSupportTransitioned,
		InnovationID:       support.InnovationID,
		OrganisationUnitID: support.OrganisationUnitID,
		SupportID:          support.ID,
		MajorAssessmentID:  support.MajorAssessmentID,
		FromStatus:         string(from),
		ToStatus:           string(to),
		ActorRoleID:        a.RoleID,
		OccurredAt:         now,
	}
	if support.CloseReason != nil {
		event.CloseReason = string(*support.CloseReason)
	}
	out.emit(event)

	s.log.Info().
		Str("support_id", support.ID).
		Str("innovation_id", support.InnovationID).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("support transitioned")
	return support, nil
}

// StartSupport lets a unit open an ENGAGING or WAITING support without a prior
// suggestion.
func (s *Service) StartSupport(ctx context.Context, a actor.Context, input StartSupportInput) (string, error) {
	if err := validateActor(a); err != nil {
		return "", err
	}
	if input.Status != lifecycle.SupportEngaging && input.Status != lifecycle.SupportWaiting {
		return "", validation("a support can only be started as ENGAGING or WAITING, got %q", input.Status)
	}

	var supportID string
	err := s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, input.InnovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		if innovation.Status != lifecycle.InnovationInProgress || innovation.CurrentMajorAssessmentID == nil {
			return invalidTransition("support can only start on an assessed innovation in progress", map[string]any{"status": innovation.Status})
		}
		if err := ensureUnitShared(ctx, q, innovation.ID, input.OrganisationUnitID); err != nil {
			return err
		}

		now := s.now()
		support := store.SupportRecord{
			ID:                 util.NewID("sup"),
			InnovationID:       innovation.ID,
			OrganisationUnitID: input.OrganisationUnitID,
			Status:             input.Status,
			MajorAssessmentID:  *innovation.CurrentMajorAssessmentID,
			IsMostRecent:       true,
			StartedAt:          &now,
			EngagedAt:          &now,
			StatusChangedAt:    now,
			CreatedByRole:      a.RoleID,
			UpdatedByRole:      a.RoleID,
		}
		inserted, err := q.InsertSupport(ctx, support)
		if err != nil {
			return mapStoreError(err, "support")
		}
		if !inserted {
			return conflict("organisation unit %s already holds a live support", input.OrganisationUnitID)
		}
		if err := s.retireTombstones(ctx, q, support, a, now); err != nil {
			return err
		}
		if err := q.ReplaceSupportUsers(ctx, support.ID, uniqueStrings(input.AssignedUserRoleIDs)); err != nil {
			return mapStoreError(err, "support users")
		}
		if err := recordHistory(ctx, q, support, now, a.RoleID); err != nil {
			return err
		}
		if err := appendSupportEvent(ctx, q, store.SupportEvent{
			ID:                 util.NewID("slog"),
			InnovationID:       support.InnovationID,
			OrganisationUnitID: ptr(support.OrganisationUnitID),
			Type:               lifecycle.EventStatusUpdate,
			MajorAssessmentID:  ptr(support.MajorAssessmentID),
			ContextID:          support.ID,
			CreatedBy:          a.UserID,
			CreatedByRole:      a.RoleID,
			CreatedAt:          now,
		}); err != nil {
			return err
		}
		out.emit(events.Event{
			Type:               events.TypeSupportTransitioned,
			InnovationID:       support.InnovationID,
			OrganisationUnitID: support.OrganisationUnitID,
			SupportID:          support.ID,
			MajorAssessmentID:  support.MajorAssessmentID,
			ToStatus:           string(support.Status),
			ActorRoleID:        a.RoleID,
			OccurredAt:         now,
		})
		supportID = support.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return supportID, nil
}

// ReopenForNewMajorAssessment moves one unit into the given (current) major
// round: its older most-recent rows are superseded, live engagement carries
// over, and otherwise the unit is suggested afresh.
func (s *Service) ReopenForNewMajorAssessment(ctx context.Context, a actor.Context, innovationID, unitID, newMajorAssessmentID string) (string, error) {
	if err := validateActor(a); err != nil {
		return "", err
	}
	var supportID string
	err := s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		assessment, err := q.GetAssessment(ctx, newMajorAssessmentID)
		if err != nil {
			return mapStoreError(err, "assessment")
		}
		if assessment.InnovationID != innovationID || !assessment.IsMajor() || !assessment.IsFinished() {
			return validation("assessment %s is not a finished major assessment of innovation %s", newMajorAssessmentID, innovationID)
		}
		if deref(innovation.CurrentMajorAssessmentID) != newMajorAssessmentID {
			return validation("assessment %s is not the current major assessment", newMajorAssessmentID)
		}
		if err := ensureUnitShared(ctx, q, innovationID, unitID); err != nil {
			return err
		}

		now := s.now()
		only := map[string]struct{}{unitID: {}}
		if err := s.supersedePriorRound(ctx, q, out, innovationID, newMajorAssessmentID, only, a, now); err != nil {
			return err
		}
		if id, ok, err := liveSupportInRound(ctx, q, innovationID, unitID, newMajorAssessmentID); err != nil || ok {
			supportID = id
			return err
		}

		if err := appendSupportEvent(ctx, q, store.SupportEvent{
			ID:                 util.NewID("slog"),
			InnovationID:       innovationID,
			OrganisationUnitID: ptr(unitID),
			Type:               lifecycle.EventAssessmentSuggestion,
			MajorAssessmentID:  ptr(newMajorAssessmentID),
			ContextID:          newMajorAssessmentID,
			CreatedBy:          a.UserID,
			CreatedByRole:      a.RoleID,
			CreatedAt:          now,
		}); err != nil {
			return err
		}
		if _, err := s.aggregate(ctx, q, out, innovationID, newMajorAssessmentID, a, now); err != nil {
			return err
		}
		id, ok, err := liveSupportInRound(ctx, q, innovationID, unitID, newMajorAssessmentID)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("organisation unit %s could not be reopened; reload and retry", unitID)
		}
		supportID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return supportID, nil
}

// supersedePriorRound retires most-recent rows from earlier rounds. Units that
// were ENGAGING or WAITING get a continuation row in the new round with the
// same status and engagement timestamps. A nil units filter means every unit.
func (s *Service) supersedePriorRound(ctx context.Context, q queries, out *outbox, innovationID, newMajorAssessmentID string, units map[string]struct{}, a actor.Context, now time.Time) error {
	supports, err := q.ListMostRecentSupports(ctx, innovationID)
	if err != nil {
		return mapStoreError(err, "supports")
	}
	for _, prior := range supports {
		if prior.MajorAssessmentID == newMajorAssessmentID {
			continue
		}
		if units != nil {
			if _, ok := units[prior.OrganisationUnitID]; !ok {
				continue
			}
		}
		if err := q.SupersedeSupport(ctx, prior.ID, now, a.RoleID); err != nil {
			return mapStoreError(err, "support "+prior.ID)
		}
		prior.IsMostRecent = false
		if err := recordHistory(ctx, q, prior, now, a.RoleID); err != nil {
			return err
		}
		out.emit(events.Event{
			Type:               events.TypeSupportSuperseded,
			InnovationID:       innovationID,
			OrganisationUnitID: prior.OrganisationUnitID,
			SupportID:          prior.ID,
			MajorAssessmentID:  prior.MajorAssessmentID,
			FromStatus:         string(prior.Status),
			ActorRoleID:        a.RoleID,
			OccurredAt:         now,
		})

		if prior.Status != lifecycle.SupportEngaging && prior.Status != lifecycle.SupportWaiting {
			continue
		}
		continuation := store.SupportRecord{
			ID:                 util.NewID("sup"),
			InnovationID:       innovationID,
			OrganisationUnitID: prior.OrganisationUnitID,
			Status:             prior.Status,
			MajorAssessmentID:  newMajorAssessmentID,
			IsMostRecent:       true,
			StartedAt:          prior.StartedAt,
			EngagedAt:          prior.EngagedAt,
			StatusChangedAt:    prior.StatusChangedAt,
			CreatedByRole:      a.RoleID,
			UpdatedByRole:      a.RoleID,
		}
		inserted, err := q.InsertSupport(ctx, continuation)
		if err != nil {
			return mapStoreError(err, "support")
		}
		if !inserted {
			return conflict("organisation unit %s already holds a live support in the new round", prior.OrganisationUnitID)
		}
		users, err := q.ListSupportUsers(ctx, prior.ID)
		if err != nil {
			return mapStoreError(err, "support users")
		}
		if err := q.ReplaceSupportUsers(ctx, continuation.ID, users); err != nil {
			return mapStoreError(err, "support users")
		}
		if err := recordHistory(ctx, q, continuation, now, a.RoleID); err != nil {
			return err
		}
		s.log.Info().
			Str("innovation_id", innovationID).
			Str("organisation_unit_id", prior.OrganisationUnitID).
			Str("previous_support_id", prior.ID).
			Str("support_id", continuation.ID).
			Msg("support carried into new round")
	}
	return nil
}

// retireTombstones supersedes the unit's terminal most-recent rows once a new
// row has taken over as most recent.
func (s *Service) retireTombstones(ctx context.Context, q queries, created store.SupportRecord, a actor.Context, now time.Time) error {
	supports, err := q.ListMostRecentSupports(ctx, created.InnovationID)
	if err != nil {
		return mapStoreError(err, "supports")
	}
	for _, old := range supports {
		if old.ID == created.ID || old.OrganisationUnitID != created.OrganisationUnitID || !old.Status.IsTerminal() {
			continue
		}
		if err := q.SupersedeSupport(ctx, old.ID, now, a.RoleID); err != nil {
			return mapStoreError(err, "support "+old.ID)
		}
		old.IsMostRecent = false
		if err := recordHistory(ctx, q, old, now, a.RoleID); err != nil {
			return err
		}
	}
	return nil
}

// RecordProgressUpdate logs a progress note against an active support.
func (s *Service) RecordProgressUpdate(ctx context.Context, a actor.Context, supportID string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		support, err := q.GetSupport(ctx, supportID)
		if err != nil {
			return mapStoreError(err, "support")
		}
		if !support.IsMostRecent || (support.Status != lifecycle.SupportEngaging && support.Status != lifecycle.SupportWaiting) {
			return invalidTransition("progress can only be recorded on an engaging or waiting support", map[string]any{
				"supportId": supportID,
				"status":    support.Status,
			})
		}
		now := s.now()
		if err := appendSupportEvent(ctx, q, store.SupportEvent{
			ID:                 util.NewID("slog"),
			InnovationID:       support.InnovationID,
			OrganisationUnitID: ptr(support.OrganisationUnitID),
			Type:               lifecycle.EventProgressUpdate,
			MajorAssessmentID:  ptr(support.MajorAssessmentID),
			ContextID:          support.ID,
			CreatedBy:          a.UserID,
			CreatedByRole:      a.RoleID,
			CreatedAt:          now,
		}); err != nil {
			return err
		}
		out.emit(events.Event{
			Type:               events.TypeProgressUpdated,
			InnovationID:       support.InnovationID,
			OrganisationUnitID: support.OrganisationUnitID,
			SupportID:          support.ID,
			ActorRoleID:        a.RoleID,
			OccurredAt:         now,
		})
		return nil
	})
}

func (s *Service) GetSupport(ctx context.Context, supportID string) (SupportView, error) {
	support, err := s.store.GetSupport(ctx, supportID)
	if err != nil {
		return SupportView{}, mapStoreError(err, "support")
	}
	users, err := s.store.ListSupportUsers(ctx, supportID)
	if err != nil {
		return SupportView{}, mapStoreError(err, "support users")
	}
	return SupportView{SupportRecord: support, AssignedUserRoleIDs: users}, nil
}

// ListSupports returns the most recent row of every unit for the innovation.
func (s *Service) ListSupports(ctx context.Context, innovationID string) ([]store.SupportRecord, error) {
	if _, err := s.store.GetInnovation(ctx, innovationID); err != nil {
		return nil, mapStoreError(err, "innovation")
	}
	supports, err := s.store.ListMostRecentSupports(ctx, innovationID)
	if err != nil {
		return nil, mapStoreError(err, "supports")
	}
	return supports, nil
}

// SupportStatusAsOf answers point-in-time questions from the history table.
func (s *Service) SupportStatusAsOf(ctx context.Context, supportID string, at time.Time) (lifecycle.HistoryEntry, error) {
	entry, err := s.store.GetSupportHistoryAsOf(ctx, supportID, at)
	if err != nil {
		return lifecycle.HistoryEntry{}, mapStoreError(err, "support history")
	}
	return entry.Interval(), nil
}

func ensureUnitShared(ctx context.Context, q queries, innovationID, unitID string) error {
	unit, err := q.GetOrganisationUnit(ctx, unitID)
	if err != nil {
		return mapStoreError(err, "organisation unit")
	}
	shared, err := q.ListSharedOrganisationIDs(ctx, innovationID)
	if err != nil {
		return mapStoreError(err, "shares")
	}
	for _, organisationID := range shared {
		if organisationID == unit.OrganisationID {
			return nil
		}
	}
	return validation("organisation %s does not hold a share of innovation %s", unit.OrganisationID, innovationID)
}

func liveSupportInRound(ctx context.Context, q queries, innovationID, unitID, majorAssessmentID string) (string, bool, error) {
	live, err := q.ListLiveSupportsForUnits(ctx, innovationID, []string{unitID})
	if err != nil {
		return "", false, mapStoreError(err, "supports")
	}
	for _, support := range live {
		if support.MajorAssessmentID == majorAssessmentID {
			return support.ID, true, nil
		}
	}
	return "", false, nil
}
