package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"innovation/engine/internal/app"
	"innovation/engine/internal/lifecycle"
)

const dateLayout = "2006-01-02"

func checkLabel(err error) string {
	if err != nil {
		return color.New(color.FgRed).Sprintf("FAIL (%v)", err)
	}
	return color.New(color.FgGreen).Sprint("OK")
}

func supportStatusLabel(status lifecycle.SupportStatus) string {
	switch status {
	case lifecycle.SupportEngaging:
		return color.New(color.FgGreen).Sprint(status)
	case lifecycle.SupportWaiting, lifecycle.SupportSuggested:
		return color.New(color.FgYellow).Sprint(status)
	case lifecycle.SupportClosed, lifecycle.SupportUnsuitable:
		return color.New(color.FgHiBlack).Sprint(status)
	}
	return string(status)
}

func printIdleSupport(w io.Writer, idle app.IdleSupport, now time.Time) {
	days := int(now.Sub(idle.LastActivityAt).Hours() / 24)
	fmt.Fprintf(w, "%s  %s  %s  %s  last activity %s (%dd)\n",
		idle.SupportID,
		idle.InnovationID,
		idle.OrganisationUnitID,
		supportStatusLabel(idle.Status),
		idle.LastActivityAt.Format(dateLayout),
		days,
	)
}

func printKPI(w io.Writer, kpi app.SupportKPI) {
	engaged := "-"
	if kpi.EngagedAt != nil {
		engaged = kpi.EngagedAt.Format(dateLayout)
	}
	due := "-"
	if kpi.DueDate != nil {
		due = kpi.DueDate.Format(dateLayout)
	}
	if kpi.Overdue {
		due = color.New(color.FgRed).Sprintf("%s OVERDUE", due)
	}
	fmt.Fprintf(w, "%s  %s  %s  suggested %s  engaged %s  workdays %d  due %s\n",
		kpi.SupportID,
		kpi.OrganisationUnitID,
		supportStatusLabel(kpi.Status),
		kpi.SuggestedAt.Format(dateLayout),
		engaged,
		kpi.WorkdaysToEngage,
		due,
	)
}

func printProgress(w io.Writer, status lifecycle.GroupedStatus, progress lifecycle.Progress) {
	fmt.Fprintf(w, "Status: %s\n", color.New(color.Bold).Sprint(status))
	fmt.Fprintf(w, "Round supports: %d (suggested %d, engaging %d, waiting %d, unsuitable %d, closed %d)\n",
		progress.Total(),
		progress.Suggested,
		progress.Engaging,
		progress.Waiting,
		progress.Unsuitable,
		progress.Closed,
	)
}
