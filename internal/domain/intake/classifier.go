package intake

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Issue is the chief-complaint category.
type Issue string

const (
	IssueRoutine              Issue = "routine"
	IssueBleeding             Issue = "bleeding"
	IssueFluidLeakage         Issue = "fluid_leakage"
	IssueReducedFetalMovement Issue = "reduced_fetal_movement"
	IssueHighBloodPressure    Issue = "high_blood_pressure"
	IssueHighBloodSugar       Issue = "high_blood_sugar"
	IssueFever                Issue = "fever"
	IssueVomiting             Issue = "vomiting"
	IssuePain                 Issue = "pain"
	IssueAnemia               Issue = "anemia"
	IssueGrowthConcern        Issue = "growth_concern"
)

var knownIssues = map[Issue]bool{
	IssueRoutine: true, IssueBleeding: true, IssueFluidLeakage: true,
	IssueReducedFetalMovement: true, IssueHighBloodPressure: true, IssueHighBloodSugar: true,
	IssueFever: true, IssueVomiting: true, IssuePain: true, IssueAnemia: true,
	IssueGrowthConcern: true,
}

// Valid reports whether i is a known issue category.
func (i Issue) Valid() bool { return knownIssues[i] }

// SubQuestion is one step of an issue sub-questionnaire.
type SubQuestion struct {
	ID     string     `yaml:"id" json:"id"`
	Prompt string     `yaml:"prompt" json:"prompt"`
	Gate   Vocabulary `yaml:"gate,omitempty" json:"gate,omitempty"`
}

// IssueDefinition is a category with its keyword family and follow-ups.
type IssueDefinition struct {
	Issue     Issue         `yaml:"issue" json:"issue"`
	Keywords  []string      `yaml:"keywords" json:"keywords"`
	Questions []SubQuestion `yaml:"questions" json:"questions"`
}

// IssueCatalog holds the ordered keyword families and sub-questionnaires.
type IssueCatalog struct {
	ordered []IssueDefinition
	byIssue map[Issue]IssueDefinition
}

const (
	minSubQuestions = 3
	maxSubQuestions = 8
)

//go:embed issues.yaml
var issuesYAML []byte

var issueCatalog = mustLoadIssues(issuesYAML)

// DefaultIssues returns the built-in issue catalog.
func DefaultIssues() *IssueCatalog { return issueCatalog }

func mustLoadIssues(data []byte) *IssueCatalog {
	c, err := LoadIssues(data)
	if err != nil {
		panic(fmt.Sprintf("intake: invalid issue catalog: %v", err))
	}
	return c
}

// LoadIssues parses and validates the issue catalog. Every non-routine
// issue must be defined exactly once.
func LoadIssues(data []byte) (*IssueCatalog, error) {
	var doc struct {
		Categories []IssueDefinition `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse issues: %w", err)
	}

	c := &IssueCatalog{
		ordered: doc.Categories,
		byIssue: make(map[Issue]IssueDefinition, len(doc.Categories)),
	}
	for _, def := range doc.Categories {
		if !def.Issue.Valid() || def.Issue == IssueRoutine {
			return nil, fmt.Errorf("invalid issue category %q", def.Issue)
		}
		if _, dup := c.byIssue[def.Issue]; dup {
			return nil, fmt.Errorf("issue %q defined twice", def.Issue)
		}
		if len(def.Keywords) == 0 {
			return nil, fmt.Errorf("issue %q: no keywords", def.Issue)
		}
		if n := len(def.Questions); n < minSubQuestions || n > maxSubQuestions {
			return nil, fmt.Errorf("issue %q: %d sub-questions, want %d-%d", def.Issue, n, minSubQuestions, maxSubQuestions)
		}
		seen := make(map[string]bool)
		for i, q := range def.Questions {
			if q.ID == "" || q.Prompt == "" {
				return nil, fmt.Errorf("issue %q: sub-question %d incomplete", def.Issue, i)
			}
			if seen[q.ID] {
				return nil, fmt.Errorf("issue %q: duplicate sub-question %q", def.Issue, q.ID)
			}
			seen[q.ID] = true
			if q.Gate != "" {
				if i == 0 {
					return nil, fmt.Errorf("issue %q: first sub-question cannot be gated", def.Issue)
				}
				if !q.Gate.Valid() {
					return nil, fmt.Errorf("issue %q: unknown gate %q", def.Issue, q.Gate)
				}
			}
		}
		c.byIssue[def.Issue] = def
	}
	for issue := range knownIssues {
		if issue == IssueRoutine {
			continue
		}
		if _, ok := c.byIssue[issue]; !ok {
			return nil, fmt.Errorf("issue %q has no definition", issue)
		}
	}
	return c, nil
}

// Classify maps a complaint to the first category whose keyword family it
// mentions, or IssueRoutine.
func (c *IssueCatalog) Classify(complaint string) Issue {
	norm := normalize(complaint)
	if norm == "" {
		return IssueRoutine
	}
	for _, def := range c.ordered {
		if containsAny(norm, def.Keywords) {
			return def.Issue
		}
	}
	return IssueRoutine
}

// Definitions returns the categories in match order.
func (c *IssueCatalog) Definitions() []IssueDefinition {
	return append([]IssueDefinition(nil), c.ordered...)
}

// Questions returns the sub-questionnaire of issue; routine has none.
func (c *IssueCatalog) Questions(issue Issue) []SubQuestion {
	return c.byIssue[issue].Questions
}

// NextSubQuestion returns the index of the next sub-question to ask from
// start, or the sub-questionnaire length when it is exhausted. A gated
// sub-question is asked only if the immediately preceding sub-answer
// matches its vocabulary; an unanswered predecessor skips it.
func (c *IssueCatalog) NextSubQuestion(issue Issue, start int, rec *Record) int {
	qs := c.byIssue[issue].Questions
	if start < 0 {
		start = 0
	}
	for i := start; i < len(qs); i++ {
		q := qs[i]
		if rec.Answered(IssueFieldPath(issue, q.ID)) {
			continue
		}
		if q.Gate != "" {
			prev, _ := rec.Get(IssueFieldPath(issue, qs[i-1].ID))
			if prev == "" || !q.Gate.Matches(prev) {
				continue
			}
		}
		return i
	}
	return len(qs)
}
