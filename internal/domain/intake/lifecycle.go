package intake

import "time"

// Lifecycle archives completed visits and opens the next one.
type Lifecycle struct {
	now func() time.Time
}

func NewLifecycle(now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{now: now}
}

// OnIncoming returns the record a new utterance should be applied to. A
// record at PhaseCompleted is archived (unless its visit number is already
// in the history) and reset for the next visit; any other record is
// returned unchanged. The input is never modified.
func (l *Lifecycle) OnIncoming(rec *Record) (*Record, bool) {
	if rec.Phase != PhaseCompleted {
		return rec, false
	}
	out := rec.Clone()
	if !out.HasVisit(out.VisitNumber) {
		out.VisitHistory = append(out.VisitHistory, VisitSnapshot{
			VisitNumber:   out.VisitNumber,
			Fields:        out.Fields.Clone(),
			DetectedIssue: out.DetectedIssue,
			AlertLevel:    out.AlertLevel,
			Assessment:    out.Assessment.clone(),
			Skipped:       append([]string(nil), out.Skipped...),
			ArchivedAt:    l.now(),
		})
	}
	out.VisitNumber++
	resetVisit(out)
	return out, true
}

// resetVisit clears interview-scoped state. Identity, greeting, history,
// the conversation log and CreatedAt are kept.
func resetVisit(r *Record) {
	r.Phase = PhaseOnboarding
	r.Cursor = 0
	r.FollowUpPending = false
	r.Attempts = 0
	r.Fields = Fields{}
	r.DetectedIssue = ""
	r.IssueCursor = 0
	r.IssueComplete = false
	r.AssessmentComplete = false
	r.AlertLevel = ""
	r.Assessment = nil
	r.Skipped = nil
}
