package intake

import (
	"context"
	"time"
)

// ExtractionRequest carries one answer to be turned into a field value.
type ExtractionRequest struct {
	Prompt    string
	FieldPath string
	Utterance string
	Record    *Record
}

// Extraction is the oracle's verdict on an answer. A Valid=false result
// never overwrites a field.
type Extraction struct {
	Value string `json:"value"`
	Valid bool   `json:"is_valid_answer"`
}

// Extractor maps a raw answer to a typed field value.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (Extraction, error)
}

// AssessmentResult is what the assessment oracle returns.
type AssessmentResult struct {
	AlertLevel         AlertLevel `json:"alert_level"`
	Summary            string     `json:"assessment_summary"`
	ClinicalImpression string     `json:"clinical_impression"`
	Recommendations    []string   `json:"recommendations"`
}

// Assessor performs the terminal risk assessment of a visit.
type Assessor interface {
	Assess(ctx context.Context, rec *Record) (AssessmentResult, error)
}

// RecordStore persists interview records by patient id.
type RecordStore interface {
	Load(ctx context.Context, patientID string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	List(ctx context.Context, limit, offset int) ([]*RecordSummary, int, error)
}

// RecordSummary is the listing view of a record.
type RecordSummary struct {
	PatientID   string     `json:"patient_id"`
	Name        string     `json:"name,omitempty"`
	Phase       Phase      `json:"phase"`
	VisitNumber int        `json:"visit_number"`
	AlertLevel  AlertLevel `json:"alert_level,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
