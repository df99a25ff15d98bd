package oracle

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ehr/intake/internal/domain/intake"
)

// Heuristic is an offline oracle for local rehearsal and for deployments
// without an OpenAI key. It pattern-matches identity answers, takes every
// other answer verbatim and triages on keywords.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

var (
	nameRe    = regexp.MustCompile(`(?i)\b(?:my name is|name is|i am|i'm|this is|mera naam|naam)\s+([a-z][a-z'\-]+(?:\s+[a-z][a-z'\-]+)?)`)
	ageRe     = regexp.MustCompile(`(?i)\b(\d{2})\s*(?:years?|yrs?|y/o|saal)\b`)
	ageLeadRe = regexp.MustCompile(`(?i)\b(?:age|aged|age is|i am|i'm|umar)\s*:?\s*(\d{2})\b`)
	phoneRe   = regexp.MustCompile(`\+?\d[\d\s\-]{8,16}\d`)
	bareRe    = regexp.MustCompile(`(?i)^[a-z][a-z'\-]*(?:\s+[a-z][a-z'\-]*){0,2}$`)
	digitsRe  = regexp.MustCompile(`^\d{2}$`)
)

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "salam": true, "salaam": true,
	"assalam o alaikum": true, "assalamualaikum": true, "aoa": true, "ok": true, "yes": true, "no": true,
}

// words that follow "I am" without being a name
var notNames = map[string]bool{
	"fine": true, "good": true, "ok": true, "okay": true, "pregnant": true, "not": true,
	"here": true, "well": true, "sick": true, "worried": true, "having": true, "feeling": true,
	"my": true, "a": true, "the": true, "from": true,
}

func (h *Heuristic) Extract(_ context.Context, req intake.ExtractionRequest) (intake.Extraction, error) {
	text := strings.TrimSpace(req.Utterance)
	var v string
	switch req.FieldPath {
	case "identity.name":
		v = extractName(text)
	case "identity.age":
		v = extractAge(text)
	case "identity.contact":
		v = extractPhone(text)
	default:
		if !intake.IsNotRecalled(text) {
			v = text
		}
	}
	return intake.Extraction{Value: v, Valid: v != ""}, nil
}

func extractName(text string) string {
	if m := nameRe.FindStringSubmatch(text); m != nil {
		words := strings.Fields(m[1])
		if notNames[strings.ToLower(words[0])] {
			return ""
		}
		if len(words) == 2 && (notNames[strings.ToLower(words[1])] || strings.EqualFold(words[1], "and")) {
			words = words[:1]
		}
		return titleCase(strings.Join(words, " "))
	}
	if bareRe.MatchString(text) && !greetings[strings.ToLower(text)] {
		return titleCase(text)
	}
	return ""
}

func extractAge(text string) string {
	for _, re := range []*regexp.Regexp{ageRe, ageLeadRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	if digitsRe.MatchString(text) {
		return text
	}
	return ""
}

func extractPhone(text string) string {
	m := phoneRe.FindString(text)
	if m == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range m {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 10 {
		return ""
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var emergencyIssues = map[intake.Issue]bool{
	intake.IssueBleeding:             true,
	intake.IssueFluidLeakage:         true,
	intake.IssueReducedFetalMovement: true,
}

var dangerSigns = []string{
	"heavy bleeding", "blurred vision", "fits", "convulsion", "unconscious", "fainted",
	"severe headache", "severe pain", "no movement", "green fluid",
}

// Assess triages on the detected issue and a short list of danger signs.
func (h *Heuristic) Assess(_ context.Context, rec *intake.Record) (intake.AssessmentResult, error) {
	var signs []string
	for _, text := range answers(rec) {
		lower := strings.ToLower(text)
		for _, s := range dangerSigns {
			if strings.Contains(lower, s) {
				signs = append(signs, s)
			}
		}
	}

	level := intake.AlertGreen
	impression := "Routine antenatal visit"
	recs := []string{"Continue regular antenatal check-ups"}
	switch {
	case emergencyIssues[rec.DetectedIssue] || len(signs) > 0:
		level = intake.AlertRed
		impression = "Possible obstetric emergency"
		recs = []string{"Go to the nearest hospital now", "Do not travel alone"}
	case rec.DetectedIssue != "" && rec.DetectedIssue != intake.IssueRoutine:
		level = intake.AlertYellow
		impression = "Symptomatic pregnancy requiring review"
		recs = []string{"See your doctor within the next few days"}
	}

	summary := fmt.Sprintf("Thank you %s. Your answers about %s have been recorded.",
		firstName(rec.Identity.Name), describeIssue(rec.DetectedIssue))
	if len(signs) > 0 {
		summary += fmt.Sprintf(" You mentioned %s.", strings.Join(signs, ", "))
	}
	return intake.AssessmentResult{
		AlertLevel:         level,
		Summary:            summary,
		ClinicalImpression: impression,
		Recommendations:    recs,
	}, nil
}

func answers(rec *intake.Record) []string {
	var out []string
	for _, p := range intake.FieldPaths() {
		if v, _ := rec.Get(p); v != "" {
			out = append(out, v)
		}
	}
	for _, v := range rec.Fields.IssueAnswers {
		out = append(out, v)
	}
	return out
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "you"
}

func describeIssue(issue intake.Issue) string {
	if issue == "" || issue == intake.IssueRoutine {
		return "your routine check-up"
	}
	return strings.ReplaceAll(string(issue), "_", " ")
}
