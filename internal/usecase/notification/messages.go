package notification

import (
	"fmt"
	"strings"
	"time"

	"erp-approval-middleware/internal/domain/decision"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var title = cases.Title(language.English)

// VerdictLabel turns "auto_approve" into "Auto Approve".
func VerdictLabel(v decision.Verdict) string {
	return title.String(strings.ReplaceAll(string(v), "_", " "))
}

func score(d *decision.Decision) string {
	if d.RiskScore == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *d.RiskScore)
}

func committedAt(d *decision.Decision, now time.Time) string {
	if d.CommittedAt != nil {
		return d.CommittedAt.UTC().Format(time.RFC3339)
	}
	return now.UTC().Format(time.RFC3339)
}

// TransitionMessage is the audit text for a lifecycle event.
func TransitionMessage(d *decision.Decision, ev decision.Event, detail string) string {
	var b strings.Builder
	switch ev {
	case decision.EventDetect:
		fmt.Fprintf(&b, "Requisition %s detected: %s (risk %s), state %s",
			d.ErpRequisitionID, VerdictLabel(d.Verdict), score(d), d.State)
	case decision.EventApprove:
		fmt.Fprintf(&b, "Requisition %s approved, commit scheduled", d.ErpRequisitionID)
		if d.CommitAt != nil {
			fmt.Fprintf(&b, " at %s", d.CommitAt.UTC().Format(time.RFC3339))
		}
	case decision.EventReject:
		fmt.Fprintf(&b, "Requisition %s rejected", d.ErpRequisitionID)
	case decision.EventUndo:
		fmt.Fprintf(&b, "Requisition %s approval undone, state %s", d.ErpRequisitionID, d.State)
	case decision.EventScheduler:
		fmt.Fprintf(&b, "Requisition %s commit: state %s", d.ErpRequisitionID, d.State)
	default:
		fmt.Fprintf(&b, "Requisition %s: %s", d.ErpRequisitionID, ev)
	}
	if detail != "" {
		b.WriteString(" (")
		b.WriteString(detail)
		b.WriteString(")")
	}
	return b.String()
}

func EmailMessage(d *decision.Decision, now time.Time) string {
	lines := []string{
		"Subject: ERP Approval Decision - " + d.ErpRequisitionID,
		"",
		"Requisition ID : " + d.ErpRequisitionID,
		"Decision       : " + VerdictLabel(d.Verdict),
		"Risk Score     : " + score(d),
		"Committed At   : " + committedAt(d, now),
		"",
	}
	if d.RiskExplanation != "" {
		lines = append(lines, "Risk Analysis  : "+d.RiskExplanation, "")
	}
	lines = append(lines,
		"This is an automated notification from the ERP Approval Middleware.",
		"Please review in the approval dashboard if action is required.",
	)
	return strings.Join(lines, "\n")
}

var verdictEmoji = map[decision.Verdict]string{
	decision.VerdictAutoApprove:   ":white_check_mark:",
	decision.VerdictManualApprove: ":eyes:",
	decision.VerdictHold:          ":double_vertical_bar:",
	decision.VerdictReject:        ":x:",
}

func SlackMessage(d *decision.Decision, now time.Time) string {
	emoji, ok := verdictEmoji[d.Verdict]
	if !ok {
		emoji = ":clipboard:"
	}
	lines := []string{
		emoji + " *ERP Approval Decision*",
		"• *Requisition:* `" + d.ErpRequisitionID + "`",
		"• *Decision:* " + VerdictLabel(d.Verdict),
		"• *Risk Score:* " + score(d),
	}
	if d.RiskExplanation != "" {
		lines = append(lines, "• *Risk Analysis:* "+d.RiskExplanation)
	}
	lines = append(lines, "• *Committed:* "+committedAt(d, now))
	return strings.Join(lines, "\n")
}
