package app

import (
	"context"
	"sort"
	"time"

	"innovation/engine/internal/actor"
	"innovation/engine/internal/events"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/store"
	"innovation/engine/internal/util"
)

// SuggestUnits records accessor suggestions for the current round and converts
// them into SUGGESTED supports. It returns the ids of supports it created.
func (s *Service) SuggestUnits(ctx context.Context, a actor.Context, innovationID string, unitIDs []string, contextSupportID string) ([]string, error) {
	if err := validateActor(a); err != nil {
		return nil, err
	}
	unitIDs = uniqueStrings(unitIDs)
	if len(unitIDs) == 0 {
		return nil, validation("at least one organisation unit must be suggested")
	}

	var created []string
	err := s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		if innovation.CurrentMajorAssessmentID == nil {
			return validation("innovation %s has no finished major assessment", innovationID)
		}
		if innovation.Status != lifecycle.InnovationInProgress {
			return invalidTransition("units can only be suggested while support is in progress", map[string]any{"status": innovation.Status})
		}
		if err := ensureUnitsExist(ctx, q, unitIDs); err != nil {
			return err
		}
		if contextSupportID != "" {
			support, err := q.GetSupport(ctx, contextSupportID)
			if err != nil {
				return mapStoreError(err, "support")
			}
			if support.InnovationID != innovationID {
				return validation("support %s does not belong to innovation %s", contextSupportID, innovationID)
			}
		}

		now := s.now()
		majorID := *innovation.CurrentMajorAssessmentID
		for _, unitID := range unitIDs {
			if err := appendSupportEvent(ctx, q, store.SupportEvent{
				ID:                 util.NewID("slog"),
				InnovationID:       innovationID,
				OrganisationUnitID: ptr(unitID),
				Type:               lifecycle.EventAccessorSuggestion,
				MajorAssessmentID:  ptr(majorID),
				ContextID:          contextSupportID,
				CreatedBy:          a.UserID,
				CreatedByRole:      a.RoleID,
				CreatedAt:          now,
			}); err != nil {
				return err
			}
		}

		supports, err := s.aggregate(ctx, q, out, innovationID, majorID, a, now)
		if err != nil {
			return err
		}
		created = supportIDs(supports)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GenerateSuggestions reruns the aggregator for the current round. It is safe
// to call repeatedly; units that already hold a live support are skipped.
func (s *Service) GenerateSuggestions(ctx context.Context, a actor.Context, innovationID string) ([]string, error) {
	if err := validateActor(a); err != nil {
		return nil, err
	}
	var created []string
	err := s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		if innovation.CurrentMajorAssessmentID == nil || innovation.Status != lifecycle.InnovationInProgress {
			return nil
		}
		supports, err := s.aggregate(ctx, q, out, innovationID, *innovation.CurrentMajorAssessmentID, a, s.now())
		if err != nil {
			return err
		}
		created = supportIDs(supports)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// candidate is a unit the round's suggestion events point at, with the time
// of its earliest qualifying suggestion.
type candidate struct {
	unitID      string
	suggestedAt time.Time
}

// suggestionCandidates is the set difference at the heart of the aggregator:
// units named by suggestion events minus units holding a live support in the
// round. A unit whose support in the round already ended only comes back for
// suggestions made strictly after that end. A suggestion stamped with the same
// instant as the end belongs to the ended engagement: the two cannot be
// ordered, and re-creating a support from it would revive a unit that just
// declined or closed.
func suggestionCandidates(suggestions []store.SupportEvent, supports []store.SupportRecord, majorAssessmentID string) []candidate {
	live := map[string]bool{}
	endedAt := map[string]time.Time{}
	for _, support := range supports {
		if support.MajorAssessmentID != majorAssessmentID {
			continue
		}
		if support.IsLive() {
			live[support.OrganisationUnitID] = true
			continue
		}
		if support.Status.IsTerminal() {
			ended := support.StatusChangedAt
			if support.FinishedAt != nil {
				ended = *support.FinishedAt
			}
			if ended.After(endedAt[support.OrganisationUnitID]) {
				endedAt[support.OrganisationUnitID] = ended
			}
		}
	}

	earliest := map[string]time.Time{}
	for _, event := range suggestions {
		if !event.Type.IsSuggestion() || event.OrganisationUnitID == nil {
			continue
		}
		if deref(event.MajorAssessmentID) != majorAssessmentID {
			continue
		}
		unitID := *event.OrganisationUnitID
		if live[unitID] {
			continue
		}
		if ended, ok := endedAt[unitID]; ok && !event.CreatedAt.After(ended) {
			continue
		}
		if current, ok := earliest[unitID]; !ok || event.CreatedAt.Before(current) {
			earliest[unitID] = event.CreatedAt
		}
	}

	out := make([]candidate, 0, len(earliest))
	for unitID, at := range earliest {
		out = append(out, candidate{unitID: unitID, suggestedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].unitID < out[j].unitID })
	return out
}

// aggregate converts unconverted suggestions of the round into SUGGESTED
// supports for units whose organisation holds a share.
func (s *Service) aggregate(ctx context.Context, q queries, out *outbox, innovationID, majorAssessmentID string, a actor.Context, now time.Time) ([]store.SupportRecord, error) {
	suggestions, err := q.ListSuggestionEvents(ctx, innovationID, majorAssessmentID)
	if err != nil {
		return nil, mapStoreError(err, "suggestion events")
	}
	supports, err := q.ListSupportsForMajor(ctx, innovationID, majorAssessmentID)
	if err != nil {
		return nil, mapStoreError(err, "supports")
	}
	candidates := suggestionCandidates(suggestions, supports, majorAssessmentID)
	if len(candidates) == 0 {
		return nil, nil
	}

	unitIDs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		unitIDs = append(unitIDs, c.unitID)
	}
	units, err := q.ListOrganisationUnits(ctx, unitIDs)
	if err != nil {
		return nil, mapStoreError(err, "organisation units")
	}
	organisationOf := make(map[string]string, len(units))
	for _, unit := range units {
		organisationOf[unit.ID] = unit.OrganisationID
	}
	sharedIDs, err := q.ListSharedOrganisationIDs(ctx, innovationID)
	if err != nil {
		return nil, mapStoreError(err, "shares")
	}
	shared := make(map[string]bool, len(sharedIDs))
	for _, id := range sharedIDs {
		shared[id] = true
	}

	created := make([]store.SupportRecord, 0, len(candidates))
	for _, c := range candidates {
		if !shared[organisationOf[c.unitID]] {
			s.log.Debug().
				Str("innovation_id", innovationID).
				Str("organisation_unit_id", c.unitID).
				Msg("suggestion skipped; organisation not shared")
			continue
		}
		support, inserted, err := s.createSuggestedSupport(ctx, q, out, innovationID, c.unitID, majorAssessmentID, c.suggestedAt, a, now)
		if err != nil {
			return nil, err
		}
		if inserted {
			created = append(created, support)
		}
	}
	return created, nil
}

// createSuggestedSupport inserts a SUGGESTED row. An existing live row for the
// unit makes it a no-op.
func (s *Service) createSuggestedSupport(ctx context.Context, q queries, out *outbox, innovationID, unitID, majorAssessmentID string, suggestedAt time.Time, a actor.Context, now time.Time) (store.SupportRecord, bool, error) {
	support := store.SupportRecord{
		ID:                 util.NewID("sup"),
		InnovationID:       innovationID,
		OrganisationUnitID: unitID,
		Status:             lifecycle.SupportSuggested,
		MajorAssessmentID:  majorAssessmentID,
		IsMostRecent:       true,
		StartedAt:          ptr(suggestedAt),
		StatusChangedAt:    now,
		CreatedByRole:      a.RoleID,
		UpdatedByRole:      a.RoleID,
	}
	inserted, err := q.InsertSupport(ctx, support)
	if err != nil {
		return store.SupportRecord{}, false, mapStoreError(err, "support")
	}
	if !inserted {
		s.log.Debug().
			Str("innovation_id", innovationID).
			Str("organisation_unit_id", unitID).
			Msg("unit already holds a live support")
		return store.SupportRecord{}, false, nil
	}
	if err := s.retireTombstones(ctx, q, support, a, now); err != nil {
		return store.SupportRecord{}, false, err
	}
	if err := recordHistory(ctx, q, support, now, a.RoleID); err != nil {
		return store.SupportRecord{}, false, err
	}
	out.emit(events.Event{
		Type:               events.TypeSupportSuggested,
		InnovationID:       innovationID,
		OrganisationUnitID: unitID,
		SupportID:          support.ID,
		MajorAssessmentID:  majorAssessmentID,
		ToStatus:           string(support.Status),
		ActorRoleID:        a.RoleID,
		OccurredAt:         now,
	})
	s.log.Info().
		Str("innovation_id", innovationID).
		Str("organisation_unit_id", unitID).
		Str("support_id", support.ID).
		Msg("support suggested")
	return support, true, nil
}

func supportIDs(supports []store.SupportRecord) []string {
	ids := make([]string, 0, len(supports))
	for _, support := range supports {
		ids = append(ids, support.ID)
	}
	return ids
}
