package app

import (
	"context"
	"time"

	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/store"
)

// queries is the statement surface the engine needs inside one transaction.
type queries interface {
	InsertInnovation(context.Context, store.Innovation) error
	GetInnovation(context.Context, string) (store.Innovation, error)
	LockInnovation(context.Context, string) (store.Innovation, error)
	UpdateInnovationStatus(ctx context.Context, innovationID string, from, to lifecycle.InnovationStatus, role string) error
	SetInnovationAssessmentPointers(ctx context.Context, innovationID, currentAssessmentID string, currentMajorAssessmentID *string, role string) error
	ListInnovationIDs(context.Context) ([]string, error)

	InsertAssessment(context.Context, store.Assessment) error
	GetAssessment(context.Context, string) (store.Assessment, error)
	GetOpenAssessment(context.Context, string) (*store.Assessment, error)
	GetLatestAssessment(context.Context, string) (*store.Assessment, error)
	FinishAssessment(ctx context.Context, assessmentID string, at time.Time, role string) error
	ReplaceAssessmentUnits(ctx context.Context, assessmentID string, unitIDs []string) error
	ListAssessmentUnits(context.Context, string) ([]string, error)
	InsertReassessmentRequest(context.Context, store.ReassessmentRequest) error
	HasReassessmentRequest(ctx context.Context, innovationID, assessmentID string) (bool, error)

	GetOrganisationUnit(context.Context, string) (store.OrganisationUnit, error)
	ListOrganisationUnits(context.Context, []string) ([]store.OrganisationUnit, error)
	ListOrganisationUnitIDs(context.Context, string) ([]string, error)
	ListSharedOrganisationIDs(context.Context, string) ([]string, error)
	InsertShare(ctx context.Context, innovationID, organisationID, role string) (bool, error)
	DeleteShare(ctx context.Context, innovationID, organisationID string) (bool, error)
	InsertShareLog(context.Context, store.ShareLogEntry) error

	InsertSupport(context.Context, store.SupportRecord) (bool, error)
	GetSupport(context.Context, string) (store.SupportRecord, error)
	ListMostRecentSupports(context.Context, string) ([]store.SupportRecord, error)
	ListSupportsForMajor(ctx context.Context, innovationID, majorAssessmentID string) ([]store.SupportRecord, error)
	ListLiveSupportsForUnits(ctx context.Context, innovationID string, unitIDs []string) ([]store.SupportRecord, error)
	TransitionSupport(context.Context, store.SupportTransition) error
	SupersedeSupport(ctx context.Context, supportID string, at time.Time, role string) error
	ReplaceSupportUsers(ctx context.Context, supportID string, userRoleIDs []string) error
	ListSupportUsers(context.Context, string) ([]string, error)
	AppendSupportHistory(context.Context, store.SupportHistoryEntry) error
	GetSupportHistoryAsOf(ctx context.Context, supportID string, at time.Time) (store.SupportHistoryEntry, error)

	InsertSupportEvent(context.Context, store.SupportEvent) error
	ListSuggestionEvents(ctx context.Context, innovationID, majorAssessmentID string) ([]store.SupportEvent, error)

	InsertActivitySignal(context.Context, store.ActivitySignal) error
	InsertReminder(context.Context, store.Reminder) error
	ListIdleCandidates(ctx context.Context, afterSupportID string, limit int) ([]store.IdleCandidate, error)
}

type dataStore interface {
	queries
	InTx(ctx context.Context, fn func(queries) error) error
	Ping(context.Context) error
}

// postgresData adapts *store.PostgresStore to dataStore.
type postgresData struct {
	*store.PostgresStore
}

func (p postgresData) InTx(ctx context.Context, fn func(queries) error) error {
	return p.PostgresStore.InTx(ctx, func(q *store.Queries) error {
		return fn(q)
	})
}
