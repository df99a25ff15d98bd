package report

import (
	"fmt"
	"strings"

	"github.com/ehr/intake/internal/domain/intake"
)

// Document is the layout-free content of a visit report.
type Document struct {
	Title    string
	Sections []Section
}

type Section struct {
	Title string
	Rows  []string
}

var alertLabels = map[intake.AlertLevel]string{
	intake.AlertRed:    "RED - emergency, needs immediate attention",
	intake.AlertYellow: "YELLOW - needs review soon",
	intake.AlertGreen:  "GREEN - routine care",
}

// Build lays out the completed visit in rec: identity, assessment, the
// chief complaint with its sub-questionnaire, then every answered catalog
// question grouped by section.
func Build(rec *intake.Record, catalog *intake.Catalog, issues *intake.IssueCatalog) Document {
	doc := Document{Title: "Antenatal Intake Report"}

	doc.Sections = append(doc.Sections, Section{Title: "Patient", Rows: []string{
		"Name: " + orDash(rec.Identity.Name),
		"Age: " + orDash(rec.Identity.Age),
		"Contact: " + orDash(rec.Identity.Contact),
		"Patient ID: " + rec.PatientID,
		fmt.Sprintf("Visit: %d", rec.VisitNumber),
		"Date: " + rec.UpdatedAt.Format("02 Jan 2006 15:04"),
	}})

	if a := rec.Assessment; a != nil {
		rows := []string{
			"Alert level: " + orDash(alertLabels[a.AlertLevel]),
			"Summary: " + orDash(a.Summary),
			"Clinical impression: " + orDash(a.ClinicalImpression),
		}
		for _, r := range a.Recommendations {
			rows = append(rows, "- "+r)
		}
		if a.Fallback {
			rows = append(rows, "Automatic assessment was unavailable; default triage applied.")
		}
		doc.Sections = append(doc.Sections, Section{Title: "Assessment", Rows: rows})
	}

	complaint := Section{Title: "Chief complaint", Rows: []string{
		"Complaint: " + orDash(rec.Fields.ProblemDescription),
		"Category: " + humanize(string(orRoutine(rec.DetectedIssue))),
	}}
	for _, q := range issues.Questions(rec.DetectedIssue) {
		if v, _ := rec.Get(intake.IssueFieldPath(rec.DetectedIssue, q.ID)); v != "" {
			complaint.Rows = append(complaint.Rows, q.Prompt+" "+v)
		}
	}
	doc.Sections = append(doc.Sections, complaint)

	var current *Section
	for _, q := range catalog.Questions() {
		v, _ := rec.Get(q.Field)
		if v == "" {
			continue
		}
		title := humanize(q.Section)
		if current == nil || current.Title != title {
			doc.Sections = append(doc.Sections, Section{Title: title})
			current = &doc.Sections[len(doc.Sections)-1]
		}
		row := q.Prompt + " " + displayValue(v)
		if q.FollowUp != nil {
			if fv, _ := rec.Get(q.FollowUp.Field); fv != "" {
				row += " (" + q.FollowUp.Prompt + " " + fv + ")"
			}
		}
		current.Rows = append(current.Rows, row)
	}

	if len(rec.Skipped) > 0 {
		doc.Sections = append(doc.Sections, Section{
			Title: "Not answered",
			Rows:  []string{strings.Join(rec.Skipped, ", ")},
		})
	}
	return doc
}

func displayValue(v string) string {
	if v == intake.NotRecalled {
		return "not recalled"
	}
	return v
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func orRoutine(i intake.Issue) intake.Issue {
	if i == "" {
		return intake.IssueRoutine
	}
	return i
}

// humanize turns a snake_case identifier into a sentence-case title.
func humanize(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
