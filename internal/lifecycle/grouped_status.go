package lifecycle

type GroupedStatus string

const (
	GroupedRecordNotShared           GroupedStatus = "RECORD_NOT_SHARED"
	GroupedAwaitingNeedsAssessment   GroupedStatus = "AWAITING_NEEDS_ASSESSMENT"
	GroupedAwaitingNeedsReassessment GroupedStatus = "AWAITING_NEEDS_REASSESSMENT"
	GroupedNeedsAssessment           GroupedStatus = "NEEDS_ASSESSMENT"
	GroupedAwaitingSupport           GroupedStatus = "AWAITING_SUPPORT"
	GroupedReceivingSupport          GroupedStatus = "RECEIVING_SUPPORT"
	GroupedNoActiveSupport           GroupedStatus = "NO_ACTIVE_SUPPORT"
	GroupedArchived                  GroupedStatus = "ARCHIVED"
	GroupedWithdrawn                 GroupedStatus = "WITHDRAWN"
)

// SupportSnapshot is the slice of a support row the derived views need.
type SupportSnapshot struct {
	MajorAssessmentID string
	Status            SupportStatus
}

type GroupedStatusInput struct {
	InnovationStatus         InnovationStatus
	CurrentMajorAssessmentID string
	CurrentMajorVersion      int
	ReassessmentRequested    bool
	Supports                 []SupportSnapshot
}

// ResolveGroupedStatus derives the single user-facing status label.
//
// Within the current round a support "was had" once it left SUGGESTED, but only
// ENGAGING counts as receiving support; WAITING-only rounds read as
// NO_ACTIVE_SUPPORT.
func ResolveGroupedStatus(in GroupedStatusInput) GroupedStatus {
	switch in.InnovationStatus {
	case InnovationCreated:
		return GroupedRecordNotShared
	case InnovationWithdrawn:
		return GroupedWithdrawn
	case InnovationArchived:
		return GroupedArchived
	case InnovationNeedsAssessment:
		return GroupedNeedsAssessment
	case InnovationWaitingAssessment:
		if in.CurrentMajorVersion > 1 || in.ReassessmentRequested {
			return GroupedAwaitingNeedsReassessment
		}
		return GroupedAwaitingNeedsAssessment
	}

	hadSupport := false
	engaging := false
	for _, support := range in.Supports {
		if in.CurrentMajorAssessmentID == "" || support.MajorAssessmentID != in.CurrentMajorAssessmentID {
			continue
		}
		if support.Status != SupportSuggested {
			hadSupport = true
		}
		if support.Status == SupportEngaging {
			engaging = true
		}
	}

	switch {
	case engaging:
		return GroupedReceivingSupport
	case hadSupport:
		return GroupedNoActiveSupport
	default:
		return GroupedAwaitingSupport
	}
}

// Progress is the per-status tally of the current round.
type Progress struct {
	Suggested  int `json:"suggested"`
	Engaging   int `json:"engaging"`
	Waiting    int `json:"waiting"`
	Unsuitable int `json:"unsuitable"`
	Closed     int `json:"closed"`
}

func (p Progress) Total() int {
	return p.Suggested + p.Engaging + p.Waiting + p.Unsuitable + p.Closed
}

func ComputeProgress(currentMajorAssessmentID string, supports []SupportSnapshot) Progress {
	var progress Progress
	for _, support := range supports {
		if currentMajorAssessmentID == "" || support.MajorAssessmentID != currentMajorAssessmentID {
			continue
		}
		switch support.Status {
		case SupportSuggested:
			progress.Suggested++
		case SupportEngaging:
			progress.Engaging++
		case SupportWaiting:
			progress.Waiting++
		case SupportUnsuitable:
			progress.Unsuitable++
		case SupportClosed:
			progress.Closed++
		}
	}
	return progress
}
