package intake

import (
	"fmt"
	"time"
)

// Phase is the top-level interview state of a record.
type Phase string

const (
	PhaseOnboarding        Phase = "onboarding"
	PhaseDemographics      Phase = "demographics"
	PhaseProblemCollection Phase = "problem_collection"
	PhaseQuestionnaire     Phase = "questionnaire"
	PhaseAssessment        Phase = "assessment"
	PhaseCompleted         Phase = "completed"
)

var phaseRank = map[Phase]int{
	PhaseOnboarding:        0,
	PhaseDemographics:      1,
	PhaseProblemCollection: 2,
	PhaseQuestionnaire:     3,
	PhaseAssessment:        4,
	PhaseCompleted:         5,
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := phaseRank[p]
	return ok
}

// AlertLevel is the triage outcome of an assessment.
type AlertLevel string

const (
	AlertRed    AlertLevel = "red"
	AlertYellow AlertLevel = "yellow"
	AlertGreen  AlertLevel = "green"
)

// ParseAlertLevel normalizes s into a known alert level.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch AlertLevel(s) {
	case AlertRed, AlertYellow, AlertGreen:
		return AlertLevel(s), nil
	}
	return "", fmt.Errorf("invalid alert level: %q", s)
}

// TerminalAction is the follow-up work a gateway runs after a turn.
type TerminalAction string

const (
	ActionNone           TerminalAction = "none"
	ActionGenerateReport TerminalAction = "generateReport"
)

// Identity holds the durable fields that survive visit resets.
type Identity struct {
	Name    string `json:"name,omitempty"`
	Age     string `json:"age,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// Complete reports whether all identity fields are populated.
func (i Identity) Complete() bool {
	return i.Name != "" && i.Age != "" && i.Contact != ""
}

// Assessment is the outcome of the terminal risk assessment.
type Assessment struct {
	AlertLevel         AlertLevel `json:"alert_level"`
	Summary            string     `json:"summary"`
	ClinicalImpression string     `json:"clinical_impression"`
	Recommendations    []string   `json:"recommendations,omitempty"`
	Fallback           bool       `json:"fallback,omitempty"`
	AssessedAt         time.Time  `json:"assessed_at"`
}

// Utterance is one entry of the append-only conversation log.
type Utterance struct {
	ID    string    `json:"id"`
	Visit int       `json:"visit"`
	Role  string    `json:"role"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

const (
	RolePatient   = "patient"
	RoleAssistant = "assistant"
)

// VisitSnapshot is an archived, immutable copy of one completed visit.
type VisitSnapshot struct {
	VisitNumber   int         `json:"visit_number"`
	Fields        Fields      `json:"fields"`
	DetectedIssue Issue       `json:"detected_issue,omitempty"`
	AlertLevel    AlertLevel  `json:"alert_level,omitempty"`
	Assessment    *Assessment `json:"assessment,omitempty"`
	Skipped       []string    `json:"skipped_questions,omitempty"`
	ArchivedAt    time.Time   `json:"archived_at"`
}

// Record is the patient interview aggregate, keyed by PatientID.
type Record struct {
	PatientID  string   `json:"patient_id"`
	Identity   Identity `json:"identity"`
	HasGreeted bool     `json:"has_greeted"`

	Phase           Phase `json:"phase"`
	Cursor          int   `json:"cursor"`
	FollowUpPending bool  `json:"follow_up_pending,omitempty"`
	Attempts        int   `json:"attempts,omitempty"`

	Fields Fields `json:"fields"`

	DetectedIssue Issue `json:"detected_issue,omitempty"`
	IssueCursor   int   `json:"issue_cursor"`
	IssueComplete bool  `json:"issue_complete"`

	AssessmentComplete bool        `json:"assessment_complete"`
	AlertLevel         AlertLevel  `json:"alert_level,omitempty"`
	Assessment         *Assessment `json:"assessment,omitempty"`

	Skipped []string `json:"skipped_questions,omitempty"`

	VisitNumber     int             `json:"visit_number"`
	VisitHistory    []VisitSnapshot `json:"visit_history"`
	ConversationLog []Utterance     `json:"conversation_log"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRecord returns the empty record created on first contact.
func NewRecord(patientID string, now time.Time) *Record {
	return &Record{
		PatientID:       patientID,
		Phase:           PhaseOnboarding,
		VisitNumber:     1,
		VisitHistory:    []VisitSnapshot{},
		ConversationLog: []Utterance{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Fields = r.Fields.Clone()
	out.Assessment = r.Assessment.clone()
	out.Skipped = append([]string(nil), r.Skipped...)
	out.ConversationLog = append([]Utterance{}, r.ConversationLog...)
	out.VisitHistory = make([]VisitSnapshot, len(r.VisitHistory))
	for i, v := range r.VisitHistory {
		out.VisitHistory[i] = v.clone()
	}
	return &out
}

func (a *Assessment) clone() *Assessment {
	if a == nil {
		return nil
	}
	out := *a
	out.Recommendations = append([]string(nil), a.Recommendations...)
	return &out
}

func (v VisitSnapshot) clone() VisitSnapshot {
	v.Fields = v.Fields.Clone()
	v.Assessment = v.Assessment.clone()
	v.Skipped = append([]string(nil), v.Skipped...)
	return v
}

// HasVisit reports whether visit n has already been archived.
func (r *Record) HasVisit(n int) bool {
	for _, v := range r.VisitHistory {
		if v.VisitNumber == n {
			return true
		}
	}
	return false
}

func (r *Record) wasSkipped(field string) bool {
	for _, s := range r.Skipped {
		if s == field {
			return true
		}
	}
	return false
}

// transition moves r forward to phase to. Backward moves are rejected;
// only the visit lifecycle may reset a record to onboarding.
func (r *Record) transition(to Phase) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrPhaseRegression, to)
	}
	if phaseRank[to] < phaseRank[r.Phase] {
		return fmt.Errorf("%w: %s -> %s", ErrPhaseRegression, r.Phase, to)
	}
	r.Phase = to
	return nil
}
