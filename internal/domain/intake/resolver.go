package intake

// Decision is the resolver's verdict for one question.
type Decision string

const (
	DecisionAsk     Decision = "ask"
	DecisionSkip    Decision = "skip"
	DecisionPending Decision = "pending"
)

// Resolver decides which catalog questions are eligible for a record. It
// holds no state of its own and never mutates the record, so it may be
// called any number of times, speculatively included.
type Resolver struct {
	catalog *Catalog
}

func NewResolver(c *Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// NextEligible scans forward from start and returns the index of the first
// question that should be asked, or catalog length when none remains.
// Pending questions are treated as skipped.
func (r *Resolver) NextEligible(start int, rec *Record) int {
	if start < 0 {
		start = 0
	}
	for i := start; i < r.catalog.Len(); i++ {
		if r.Evaluate(i, rec) == DecisionAsk {
			return i
		}
	}
	return r.catalog.Len()
}

// NextEligibleBefore is NextEligible bounded to [start, end); it returns end
// when nothing in the range is eligible.
func (r *Resolver) NextEligibleBefore(start, end int, rec *Record) int {
	next := r.NextEligible(start, rec)
	if next > end {
		return end
	}
	return next
}

// Evaluate returns the decision for the question at index i.
func (r *Resolver) Evaluate(i int, rec *Record) Decision {
	q := r.catalog.At(i)
	if rec.Answered(q.Field) {
		return DecisionSkip
	}
	section := evaluate(r.catalog.SectionGate(q.Section), &rec.Fields, rec)
	if section == DecisionSkip {
		return DecisionSkip
	}
	own := evaluate(q.Precondition, &rec.Fields, rec)
	if own == DecisionSkip {
		return DecisionSkip
	}
	if section == DecisionPending || own == DecisionPending {
		return DecisionPending
	}
	return DecisionAsk
}

// PlanEntry is the decision for one question of the catalog.
type PlanEntry struct {
	Index    int      `json:"index"`
	ID       int      `json:"id"`
	Key      string   `json:"key"`
	Section  string   `json:"section"`
	Decision Decision `json:"decision"`
}

// Plan evaluates every question against rec.
func (r *Resolver) Plan(rec *Record) []PlanEntry {
	out := make([]PlanEntry, 0, r.catalog.Len())
	for i := 0; i < r.catalog.Len(); i++ {
		q := r.catalog.At(i)
		out = append(out, PlanEntry{
			Index:    i,
			ID:       q.ID,
			Key:      q.Key,
			Section:  q.Section,
			Decision: r.Evaluate(i, rec),
		})
	}
	return out
}

func evaluate(p *Precondition, f *Fields, rec *Record) Decision {
	if p == nil {
		return DecisionAsk
	}
	switch p.Kind {
	case PreconditionPregnancyCount:
		first, known := f.IsFirstPregnancy()
		if !known {
			return DecisionPending
		}
		return askIf(!first)

	case PreconditionRecall:
		v, _ := rec.Get(p.Field)
		if v == "" {
			// A date question given up on counts as not recalled.
			if rec.wasSkipped(p.Field) {
				return DecisionAsk
			}
			return DecisionPending
		}
		return askIf(!dateRecalled(v))

	case PreconditionTrimester:
		t := f.Trimester()
		if t == TrimesterUnknown {
			return DecisionPending
		}
		for _, want := range p.trimesters {
			if t == want {
				return DecisionAsk
			}
		}
		return DecisionSkip

	case PreconditionMultiplicity:
		first, known := f.IsFirstPregnancy()
		if !known {
			return DecisionPending
		}
		if first {
			return DecisionSkip
		}
		n, ok := f.ChildCount()
		if !ok {
			return DecisionPending
		}
		switch p.Children {
		case ChildrenSingle:
			return askIf(n == 1)
		case ChildrenMultiple:
			return askIf(n >= 2)
		}
		return DecisionSkip

	case PreconditionAnswer:
		v, _ := rec.Get(p.Field)
		if v == "" {
			return DecisionPending
		}
		return askIf(p.Vocabulary.Matches(v))

	case PreconditionTwins:
		return askIf(f.TwinsDetected())
	}
	return DecisionSkip
}

func askIf(ok bool) Decision {
	if ok {
		return DecisionAsk
	}
	return DecisionSkip
}
