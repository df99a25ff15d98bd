package intake

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PreconditionKind is the closed set of gating rules a question may carry.
type PreconditionKind string

const (
	// PreconditionPregnancyCount asks only in a second-or-later pregnancy.
	PreconditionPregnancyCount PreconditionKind = "pregnancy_count"
	// PreconditionRecall asks only if a date field was not recalled.
	PreconditionRecall PreconditionKind = "recall"
	// PreconditionTrimester asks only inside the listed trimesters.
	PreconditionTrimester PreconditionKind = "trimester"
	// PreconditionMultiplicity selects the single-child or multi-child block.
	PreconditionMultiplicity PreconditionKind = "multiplicity"
	// PreconditionAnswer asks only if a controlling answer matches a vocabulary.
	PreconditionAnswer PreconditionKind = "answer"
	// PreconditionTwins asks only if twins were mentioned earlier.
	PreconditionTwins PreconditionKind = "twins"
)

const (
	ChildrenSingle   = "single"
	ChildrenMultiple = "multiple"
)

type Precondition struct {
	Kind       PreconditionKind `yaml:"kind" json:"kind"`
	Field      string           `yaml:"field,omitempty" json:"field,omitempty"`
	Trimesters []string         `yaml:"trimesters,omitempty" json:"trimesters,omitempty"`
	Children   string           `yaml:"children,omitempty" json:"children,omitempty"`
	Vocabulary Vocabulary       `yaml:"vocabulary,omitempty" json:"vocabulary,omitempty"`

	trimesters []Trimester
}

// FollowUp is a mandatory same-turn follow-up asked in place after the
// owning question receives a valid answer.
type FollowUp struct {
	Prompt string `yaml:"prompt" json:"prompt"`
	Field  string `yaml:"field" json:"field"`
}

type Question struct {
	ID           int           `yaml:"id" json:"id"`
	Key          string        `yaml:"key" json:"key"`
	Section      string        `yaml:"section" json:"section"`
	Prompt       string        `yaml:"prompt" json:"prompt"`
	Field        string        `yaml:"field" json:"field"`
	Precondition *Precondition `yaml:"precondition,omitempty" json:"precondition,omitempty"`
	FollowUp     *FollowUp     `yaml:"follow_up,omitempty" json:"follow_up,omitempty"`
}

// SectionDemographics is the leading block walked by the demographics phase.
const SectionDemographics = "demographics"

// Catalog is the immutable, ordered list of interview questions.
type Catalog struct {
	questions       []Question
	sections        map[string]*Precondition
	demographicsEnd int
}

//go:embed catalog.yaml
var catalogYAML []byte

var defaultCatalog = mustLoadCatalog(catalogYAML)

// DefaultCatalog returns the built-in question catalog.
func DefaultCatalog() *Catalog { return defaultCatalog }

func mustLoadCatalog(data []byte) *Catalog {
	c, err := LoadCatalog(data)
	if err != nil {
		panic(fmt.Sprintf("intake: invalid question catalog: %v", err))
	}
	return c
}

// LoadCatalog parses and validates a YAML question catalog.
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Sections  map[string]*Precondition `yaml:"sections"`
		Questions []Question               `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("catalog has no questions")
	}

	c := &Catalog{questions: doc.Questions, sections: doc.Sections}
	for name, gate := range c.sections {
		if gate == nil {
			return nil, fmt.Errorf("section %q: empty gate", name)
		}
		if err := gate.compile(); err != nil {
			return nil, fmt.Errorf("section %q: %w", name, err)
		}
	}
	seenFields := make(map[string]int)
	inDemographics := true
	for i := range c.questions {
		q := &c.questions[i]
		if q.ID != i+1 {
			return nil, fmt.Errorf("question %q: id %d out of sequence, want %d", q.Key, q.ID, i+1)
		}
		if q.Prompt == "" {
			return nil, fmt.Errorf("question %d: empty prompt", q.ID)
		}
		if _, ok := fieldPaths[q.Field]; !ok {
			return nil, fmt.Errorf("question %d: unknown field %q", q.ID, q.Field)
		}
		if prev, dup := seenFields[q.Field]; dup {
			return nil, fmt.Errorf("question %d: field %q already used by question %d", q.ID, q.Field, prev)
		}
		seenFields[q.Field] = q.ID

		if q.Section == SectionDemographics {
			if !inDemographics {
				return nil, fmt.Errorf("question %d: demographics questions must be contiguous and first", q.ID)
			}
			c.demographicsEnd = i + 1
		} else {
			inDemographics = false
		}

		if q.FollowUp != nil {
			if _, ok := fieldPaths[q.FollowUp.Field]; !ok {
				return nil, fmt.Errorf("question %d: unknown follow-up field %q", q.ID, q.FollowUp.Field)
			}
			if q.FollowUp.Prompt == "" {
				return nil, fmt.Errorf("question %d: empty follow-up prompt", q.ID)
			}
		}
		if q.Precondition != nil {
			if err := q.Precondition.compile(); err != nil {
				return nil, fmt.Errorf("question %d: %w", q.ID, err)
			}
		}
	}
	if c.demographicsEnd == 0 {
		return nil, fmt.Errorf("catalog has no demographics block")
	}
	return c, nil
}

func (p *Precondition) compile() error {
	switch p.Kind {
	case PreconditionPregnancyCount, PreconditionTwins:
		return nil
	case PreconditionRecall:
		if _, ok := fieldPaths[p.Field]; !ok {
			return fmt.Errorf("recall precondition: unknown field %q", p.Field)
		}
		return nil
	case PreconditionTrimester:
		if len(p.Trimesters) == 0 {
			return fmt.Errorf("trimester precondition: no trimesters listed")
		}
		p.trimesters = p.trimesters[:0]
		for _, s := range p.Trimesters {
			t, ok := parseTrimester(s)
			if !ok {
				return fmt.Errorf("trimester precondition: unknown trimester %q", s)
			}
			p.trimesters = append(p.trimesters, t)
		}
		return nil
	case PreconditionMultiplicity:
		if p.Children != ChildrenSingle && p.Children != ChildrenMultiple {
			return fmt.Errorf("multiplicity precondition: children must be %q or %q", ChildrenSingle, ChildrenMultiple)
		}
		return nil
	case PreconditionAnswer:
		if _, ok := fieldPaths[p.Field]; !ok {
			return fmt.Errorf("answer precondition: unknown field %q", p.Field)
		}
		if !p.Vocabulary.Valid() {
			return fmt.Errorf("answer precondition: unknown vocabulary %q", p.Vocabulary)
		}
		return nil
	}
	return fmt.Errorf("unknown precondition kind %q", p.Kind)
}

// SectionGate returns the precondition shared by every question of a
// section, or nil.
func (c *Catalog) SectionGate(section string) *Precondition {
	return c.sections[section]
}

// Len is the number of questions; it doubles as the exhausted sentinel.
func (c *Catalog) Len() int { return len(c.questions) }

// At returns the question at index i.
func (c *Catalog) At(i int) Question { return c.questions[i] }

// Questions returns a copy of the catalog in traversal order.
func (c *Catalog) Questions() []Question {
	return append([]Question(nil), c.questions...)
}

// DemographicsEnd is the index of the first question past the
// demographics block, where the main questionnaire begins.
func (c *Catalog) DemographicsEnd() int { return c.demographicsEnd }

// Exhausted reports whether cursor is past the last question.
func (c *Catalog) Exhausted(cursor int) bool { return cursor >= len(c.questions) }

// IndexOf returns the index of the question with the given key.
func (c *Catalog) IndexOf(key string) (int, bool) {
	for i, q := range c.questions {
		if q.Key == key {
			return i, true
		}
	}
	return 0, false
}

// Section returns the [first, end) index range of a section.
func (c *Catalog) Section(name string) (first, end int) {
	first = -1
	for i, q := range c.questions {
		if q.Section != name {
			continue
		}
		if first < 0 {
			first = i
		}
		end = i + 1
	}
	if first < 0 {
		return 0, 0
	}
	return first, end
}
