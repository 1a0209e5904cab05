package escalation

import (
	"fmt"
	"html"
	"strings"

	"arbiter/internal/decision/models"
)

// EmailSubject builds the escalation notification subject line.
func EmailSubject(req *models.Request) string {
	return fmt.Sprintf("Decision escalated: %s for %s", req.Type, req.EntityType)
}

// EmailHTMLBody builds the HTML notification body for one recipient.
func EmailHTMLBody(req *models.Request, recipientReason string) string {
	due := "not set"
	if req.DueAtUTC != nil {
		due = req.DueAtUTC.UTC().Format("2006-01-02 15:04 UTC")
	}

	var b strings.Builder
	b.WriteString("<h3>Decision SLA escalation</h3>")
	b.WriteString("<p>A decision request is overdue and has been escalated.</p>")
	b.WriteString("<ul>")
	fmt.Fprintf(&b, "<li><b>Decision type:</b> %s</li>", html.EscapeString(req.Type))
	fmt.Fprintf(&b, "<li><b>Entity:</b> %s %s</li>", html.EscapeString(req.EntityType), req.EntityID)
	fmt.Fprintf(&b, "<li><b>Due:</b> %s</li>", due)
	fmt.Fprintf(&b, "<li><b>Policy reason:</b> %s</li>", html.EscapeString(req.PolicyReason))
	fmt.Fprintf(&b, "<li><b>You are notified as:</b> %s</li>", html.EscapeString(recipientReason))
	b.WriteString("</ul>")
	b.WriteString("<p>Please review and act on this decision as soon as possible.</p>")
	return b.String()
}

// EmailTextBody builds the plain-text fallback body.
func EmailTextBody(req *models.Request, recipientReason string) string {
	due := "not set"
	if req.DueAtUTC != nil {
		due = req.DueAtUTC.UTC().Format("2006-01-02 15:04 UTC")
	}

	var b strings.Builder
	b.WriteString("A decision request is overdue and has been escalated.\n\n")
	fmt.Fprintf(&b, "Decision type: %s\n", req.Type)
	fmt.Fprintf(&b, "Entity: %s %s\n", req.EntityType, req.EntityID)
	fmt.Fprintf(&b, "Due: %s\n", due)
	fmt.Fprintf(&b, "Policy reason: %s\n", req.PolicyReason)
	fmt.Fprintf(&b, "You are notified as: %s\n\n", recipientReason)
	b.WriteString("Please review and act on this decision as soon as possible.\n")
	return b.String()
}
