package intake

import (
	"testing"
	"time"
)

func completedRecord() *Record {
	rec := NewRecord("patient-1", testNow)
	rec.Identity = Identity{Name: "Amina", Age: "28", Contact: "03001234567"}
	rec.HasGreeted = true
	rec.Phase = PhaseCompleted
	rec.Cursor = 56
	rec.Fields.CurrentPregnancy.PregnancyNumber = "2"
	rec.Fields.ProblemDescription = "bleeding"
	rec.DetectedIssue = IssueBleeding
	rec.IssueComplete = true
	rec.AssessmentComplete = true
	rec.AlertLevel = AlertRed
	rec.Assessment = &Assessment{AlertLevel: AlertRed, Summary: "urgent"}
	rec.Skipped = []string{"notes"}
	rec.ConversationLog = []Utterance{{ID: "u1", Visit: 1, Role: RolePatient, Text: "hi"}}
	return rec
}

func TestLifecycle_ResetsCompletedRecord(t *testing.T) {
	l := NewLifecycle(func() time.Time { return testNow })
	in := completedRecord()

	out, reset := l.OnIncoming(in)

	if !reset {
		t.Fatal("expected a reset")
	}
	if out.VisitNumber != 2 || out.Phase != PhaseOnboarding || out.Cursor != 0 {
		t.Errorf("unexpected reset state %d/%s/%d", out.VisitNumber, out.Phase, out.Cursor)
	}
	if out.Fields.CurrentPregnancy.PregnancyNumber != "" || out.DetectedIssue != "" || out.AssessmentComplete || out.AlertLevel != "" || out.Skipped != nil {
		t.Error("interview-scoped state must be cleared")
	}
	if out.Identity != in.Identity || !out.HasGreeted || len(out.ConversationLog) != 1 {
		t.Error("identity, greeting and log must survive")
	}
	if len(out.VisitHistory) != 1 {
		t.Fatalf("expected 1 archived visit, got %d", len(out.VisitHistory))
	}
	snap := out.VisitHistory[0]
	if snap.VisitNumber != 1 || snap.AlertLevel != AlertRed || snap.Fields.ProblemDescription != "bleeding" || !snap.ArchivedAt.Equal(testNow) {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if in.Phase != PhaseCompleted || in.VisitNumber != 1 || len(in.VisitHistory) != 0 {
		t.Error("the input record must not be modified")
	}
}

func TestLifecycle_ArchiveIsIdempotent(t *testing.T) {
	l := NewLifecycle(func() time.Time { return testNow })
	in := completedRecord()
	in.VisitHistory = []VisitSnapshot{{VisitNumber: 1}}

	out, _ := l.OnIncoming(in)

	if len(out.VisitHistory) != 1 {
		t.Errorf("visit 1 must not be archived twice, got %d entries", len(out.VisitHistory))
	}
	if out.VisitNumber != 2 {
		t.Errorf("expected visit 2, got %d", out.VisitNumber)
	}
}

func TestLifecycle_LeavesActiveRecordAlone(t *testing.T) {
	l := NewLifecycle(nil)
	for _, phase := range []Phase{PhaseOnboarding, PhaseDemographics, PhaseProblemCollection, PhaseQuestionnaire, PhaseAssessment} {
		in := NewRecord("p", testNow)
		in.Phase = phase
		out, reset := l.OnIncoming(in)
		if reset || out != in {
			t.Errorf("%s: expected the same record back", phase)
		}
	}
}

func TestLifecycle_SnapshotIsDetached(t *testing.T) {
	l := NewLifecycle(func() time.Time { return testNow })
	in := completedRecord()
	out, _ := l.OnIncoming(in)

	out.VisitHistory[0].Assessment.Summary = "changed"
	out.VisitHistory[0].Skipped[0] = "changed"
	if in.Assessment.Summary != "urgent" || in.Skipped[0] != "notes" {
		t.Error("snapshots must not share state with the source record")
	}
}
