package app

import (
	"context"
	"time"

	"innovation/engine/internal/actor"
	"innovation/engine/internal/events"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/store"
)

const (
	ShareOperationShare     = "SHARE"
	ShareOperationStopShare = "STOP_SHARE"
)

// ShareChanged is raised inside the transaction that mutates a share.
type ShareChanged struct {
	InnovationID   string
	OrganisationID string
	Operation      string
	RoleID         string
	At             time.Time
}

type shareHandler func(ctx context.Context, q queries, change ShareChanged) error

func appendShareLog(ctx context.Context, q queries, change ShareChanged) error {
	err := q.InsertShareLog(ctx, store.ShareLogEntry{
		InnovationID:   change.InnovationID,
		OrganisationID: change.OrganisationID,
		Operation:      change.Operation,
		CreatedByRole:  change.RoleID,
		CreatedAt:      change.At,
	})
	if err != nil {
		return mapStoreError(err, "share log")
	}
	return nil
}

func (s *Service) dispatchShareChanged(ctx context.Context, q queries, out *outbox, change ShareChanged) error {
	for _, handle := range s.shareHandlers {
		if err := handle(ctx, q, change); err != nil {
			return err
		}
	}
	out.emit(events.Event{
		Type:           events.TypeShareChanged,
		InnovationID:   change.InnovationID,
		OrganisationID: change.OrganisationID,
		Operation:      change.Operation,
		ActorRoleID:    change.RoleID,
		OccurredAt:     change.At,
	})
	return nil
}

// ShareInnovation grants an organisation visibility. Pending suggestions for its
// units become supports straight away.
func (s *Service) ShareInnovation(ctx context.Context, a actor.Context, innovationID, organisationID string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		innovation, err := q.LockInnovation(ctx, innovationID)
		if err != nil {
			return mapStoreError(err, "innovation")
		}
		inserted, err := q.InsertShare(ctx, innovationID, organisationID, a.RoleID)
		if err != nil {
			return mapStoreError(err, "share")
		}
		if !inserted {
			return nil
		}
		now := s.now()
		if err := s.dispatchShareChanged(ctx, q, out, ShareChanged{
			InnovationID:   innovationID,
			OrganisationID: organisationID,
			Operation:      ShareOperationShare,
			RoleID:         a.RoleID,
			At:             now,
		}); err != nil {
			return err
		}
		if innovation.Status == lifecycle.InnovationInProgress && innovation.CurrentMajorAssessmentID != nil {
			if _, err := s.aggregate(ctx, q, out, innovationID, *innovation.CurrentMajorAssessmentID, a, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// StopSharing revokes an organisation's visibility and closes the live supports
// of its units with reason STOP_SHARE.
func (s *Service) StopSharing(ctx context.Context, a actor.Context, innovationID, organisationID string) error {
	if err := validateActor(a); err != nil {
		return err
	}
	return s.inTx(ctx, func(q queries, out *outbox) error {
		if _, err := q.LockInnovation(ctx, innovationID); err != nil {
			return mapStoreError(err, "innovation")
		}
		deleted, err := q.DeleteShare(ctx, innovationID, organisationID)
		if err != nil {
			return mapStoreError(err, "share")
		}
		if !deleted {
			return nil
		}

		unitIDs, err := q.ListOrganisationUnitIDs(ctx, organisationID)
		if err != nil {
			return mapStoreError(err, "organisation units")
		}
		live, err := q.ListLiveSupportsForUnits(ctx, innovationID, unitIDs)
		if err != nil {
			return mapStoreError(err, "supports")
		}
		now := s.now()
		reason := lifecycle.CloseStopShare
		for _, support := range live {
			if _, err := s.applyTransition(ctx, q, out, support, lifecycle.SupportClosed, &reason, nil, a, now); err != nil {
				return err
			}
		}
		return s.dispatchShareChanged(ctx, q, out, ShareChanged{
			InnovationID:   innovationID,
			OrganisationID: organisationID,
			Operation:      ShareOperationStopShare,
			RoleID:         a.RoleID,
			At:             now,
		})
	})
}
