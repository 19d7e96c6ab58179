package store

import (
	"time"

	"innovation/engine/internal/lifecycle"
)

type Innovation struct {
	ID                       string
	Name                     string
	Status                   lifecycle.InnovationStatus
	CurrentAssessmentID      *string
	CurrentMajorAssessmentID *string
	CreatedByRole            string
	UpdatedByRole            string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

type Assessment struct {
	ID                   string
	InnovationID         string
	MajorVersion         int
	MinorVersion         int
	PreviousAssessmentID *string
	StartedAt            time.Time
	FinishedAt           *time.Time
	CreatedByRole        string
	UpdatedByRole        string
}

// IsMajor reports whether the assessment opens a new support round.
func (a Assessment) IsMajor() bool {
	return a.MinorVersion == 0
}

func (a Assessment) IsFinished() bool {
	return a.FinishedAt != nil
}

type OrganisationUnit struct {
	ID             string
	OrganisationID string
	Name           string
}

type ShareLogEntry struct {
	ID             int64
	InnovationID   string
	OrganisationID string
	Operation      string // SHARE or STOP_SHARE
	CreatedByRole  string
	CreatedAt      time.Time
}

type ReassessmentRequest struct {
	ID            string
	InnovationID  string
	AssessmentID  string
	Reason        string
	CreatedByRole string
	CreatedAt     time.Time
}

type SupportRecord struct {
	ID                 string
	InnovationID       string
	OrganisationUnitID string
	Status             lifecycle.SupportStatus
	MajorAssessmentID  string
	IsMostRecent       bool
	StartedAt          *time.Time
	EngagedAt          *time.Time
	FinishedAt         *time.Time
	CloseReason        *lifecycle.CloseReason
	StatusChangedAt    time.Time
	CreatedByRole      string
	UpdatedByRole      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsLive reports whether the record occupies the unit's live slot.
func (r SupportRecord) IsLive() bool {
	return r.IsMostRecent && r.Status.IsLive()
}

func (r SupportRecord) Snapshot() lifecycle.SupportSnapshot {
	return lifecycle.SupportSnapshot{MajorAssessmentID: r.MajorAssessmentID, Status: r.Status}
}

// SupportTransition is a conditional status update: it only applies while the
// row still has status From and is the most recent row for its unit.
type SupportTransition struct {
	SupportID     string
	From          lifecycle.SupportStatus
	To            lifecycle.SupportStatus
	StartedAt     *time.Time
	EngagedAt     *time.Time
	FinishedAt    *time.Time
	CloseReason   *lifecycle.CloseReason
	UpdatedByRole string
	At            time.Time
}

type SupportHistoryEntry struct {
	ID                int64
	SupportID         string
	Status            lifecycle.SupportStatus
	IsMostRecent      bool
	MajorAssessmentID string
	CloseReason       *lifecycle.CloseReason
	ChangedByRole     string
	ValidFrom         time.Time
	ValidTo           *time.Time
}

func (h SupportHistoryEntry) Interval() lifecycle.HistoryEntry {
	return lifecycle.HistoryEntry{
		SupportID:    h.SupportID,
		Status:       h.Status,
		IsMostRecent: h.IsMostRecent,
		ValidFrom:    h.ValidFrom,
		ValidTo:      h.ValidTo,
	}
}

// SupportEvent is one row of the append-only support log.
type SupportEvent struct {
	ID                 string
	InnovationID       string
	OrganisationUnitID *string
	Type               lifecycle.EventType
	MajorAssessmentID  *string
	ContextID          string
	CreatedBy          string
	CreatedByRole      string
	CreatedAt          time.Time
}

type ActivitySignal struct {
	ID                 int64
	SupportID          string
	InnovationID       string
	OrganisationUnitID string
	Kind               lifecycle.ActivityKind
	OccurredAt         time.Time
}

type Reminder struct {
	ID                 int64
	InnovationID       string
	OrganisationUnitID string
	SentAt             time.Time
}

// IdleCandidate is a live engaging/waiting support with its activity aggregates.
type IdleCandidate struct {
	SupportID            string
	InnovationID         string
	OrganisationUnitID   string
	Status               lifecycle.SupportStatus
	LatestMessageAt      *time.Time
	LatestStatusChangeAt *time.Time
	LatestTaskUpdateAt   *time.Time
	LastReminderAt       *time.Time
}
