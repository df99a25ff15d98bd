package intake

import (
	"strings"
	"testing"
)

func TestIssueCatalog_Classify(t *testing.T) {
	tests := []struct {
		complaint string
		want      Issue
	}{
		{"I have been bleeding since this morning", IssueBleeding},
		{"My water broke an hour ago", IssueFluidLeakage},
		{"the baby is not moving today", IssueReducedFetalMovement},
		{"my BP was high at the clinic", IssueHighBloodPressure},
		{"sugar is high", IssueHighBloodSugar},
		{"fever since two days", IssueFever},
		{"I keep throwing up", IssueVomiting},
		{"lower back pain", IssuePain},
		{"I feel weak and dizzy", IssueAnemia},
		{"doctor said the baby is small", IssueGrowthConcern},
		{"mujhe bukhar hai", IssueFever},
		{"just a routine checkup", IssueRoutine},
		{"", IssueRoutine},
		// first family in catalog order wins
		{"pain and bleeding", IssueBleeding},
	}
	c := DefaultIssues()
	for _, tt := range tests {
		t.Run(tt.complaint, func(t *testing.T) {
			if got := c.Classify(tt.complaint); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.complaint, got, tt.want)
			}
		})
	}
}

func TestIssueCatalog_EveryIssueDefined(t *testing.T) {
	c := DefaultIssues()
	for issue := range knownIssues {
		n := len(c.Questions(issue))
		if issue == IssueRoutine {
			if n != 0 {
				t.Errorf("routine must have no sub-questions, got %d", n)
			}
			continue
		}
		if n < minSubQuestions || n > maxSubQuestions {
			t.Errorf("%s: %d sub-questions", issue, n)
		}
	}
}

func TestIssueCatalog_NextSubQuestionGate(t *testing.T) {
	c := DefaultIssues()
	rec := NewRecord("p", testNow)
	for _, id := range []string{"onset", "amount", "color_clots"} {
		if err := rec.Set(IssueFieldPath(IssueBleeding, id), "x"); err != nil {
			t.Fatal(err)
		}
	}
	if got := c.NextSubQuestion(IssueBleeding, 0, rec); got != 3 {
		t.Fatalf("expected the pain question, got %d", got)
	}

	no := rec.Clone()
	if err := no.Set(IssueFieldPath(IssueBleeding, "pain"), "no pain at all"); err != nil {
		t.Fatal(err)
	}
	if got := c.NextSubQuestion(IssueBleeding, 4, no); got != len(c.Questions(IssueBleeding)) {
		t.Errorf("gated detail must be skipped after a negative answer, got %d", got)
	}

	yes := rec.Clone()
	if err := yes.Set(IssueFieldPath(IssueBleeding, "pain"), "yes, cramps"); err != nil {
		t.Fatal(err)
	}
	if got := c.NextSubQuestion(IssueBleeding, 4, yes); got != 4 {
		t.Errorf("gated detail must be asked after a positive answer, got %d", got)
	}
}

func TestLoadIssues_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown category",
			yaml: `
categories:
  - issue: headache
    keywords: [head]
    questions: [{id: a, prompt: a}, {id: b, prompt: b}, {id: c, prompt: c}]`,
			want: "invalid issue category",
		},
		{
			name: "too few questions",
			yaml: `
categories:
  - issue: fever
    keywords: [fever]
    questions: [{id: a, prompt: a}]`,
			want: "sub-questions",
		},
		{
			name: "first question gated",
			yaml: `
categories:
  - issue: fever
    keywords: [fever]
    questions: [{id: a, prompt: a, gate: affirmative}, {id: b, prompt: b}, {id: c, prompt: c}]`,
			want: "first sub-question cannot be gated",
		},
		{
			name: "missing categories",
			yaml: `
categories:
  - issue: fever
    keywords: [fever]
    questions: [{id: a, prompt: a}, {id: b, prompt: b}, {id: c, prompt: c}]`,
			want: "has no definition",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadIssues([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
