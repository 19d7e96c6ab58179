// Package lifecycle holds the pure rules of the support lifecycle: status
// enumerations, transition guards and the derived innovation-level views. Nothing
// here touches storage; callers load the inputs and persist the outcomes.
package lifecycle

type InnovationStatus string

const (
	InnovationCreated           InnovationStatus = "CREATED"
	InnovationWaitingAssessment InnovationStatus = "WAITING_ASSESSMENT"
	InnovationNeedsAssessment   InnovationStatus = "NEEDS_ASSESSMENT"
	InnovationInProgress        InnovationStatus = "IN_PROGRESS"
	InnovationArchived          InnovationStatus = "ARCHIVED"
	InnovationWithdrawn         InnovationStatus = "WITHDRAWN"
	InnovationComplete          InnovationStatus = "COMPLETE"
)

type SupportStatus string

const (
	SupportSuggested  SupportStatus = "SUGGESTED"
	SupportEngaging   SupportStatus = "ENGAGING"
	SupportWaiting    SupportStatus = "WAITING"
	SupportUnsuitable SupportStatus = "UNSUITABLE"
	SupportClosed     SupportStatus = "CLOSED"
)

// IsTerminal reports whether the status frees the unit's live slot.
func (s SupportStatus) IsTerminal() bool {
	return s == SupportClosed || s == SupportUnsuitable
}

// IsLive is the complement of IsTerminal for known statuses.
func (s SupportStatus) IsLive() bool {
	return s == SupportSuggested || s == SupportEngaging || s == SupportWaiting
}

type CloseReason string

const (
	CloseStopShare       CloseReason = "STOP_SHARE"
	CloseArchive         CloseReason = "ARCHIVE"
	CloseSupportComplete CloseReason = "SUPPORT_COMPLETE"
)

func ParseCloseReason(value string) (CloseReason, bool) {
	switch CloseReason(value) {
	case CloseStopShare, CloseArchive, CloseSupportComplete:
		return CloseReason(value), true
	default:
		return "", false
	}
}

type EventType string

const (
	EventAccessorSuggestion   EventType = "ACCESSOR_SUGGESTION"
	EventAssessmentSuggestion EventType = "ASSESSMENT_SUGGESTION"
	EventStatusUpdate         EventType = "STATUS_UPDATE"
	EventProgressUpdate       EventType = "PROGRESS_UPDATE"
)

// IsSuggestion reports whether events of this type feed the suggestion aggregator.
func (t EventType) IsSuggestion() bool {
	return t == EventAccessorSuggestion || t == EventAssessmentSuggestion
}

type ActivityKind string

const (
	ActivityMessage ActivityKind = "MESSAGE"
	ActivityTask    ActivityKind = "TASK"
)

func ParseActivityKind(value string) (ActivityKind, bool) {
	switch ActivityKind(value) {
	case ActivityMessage, ActivityTask:
		return ActivityKind(value), true
	default:
		return "", false
	}
}
