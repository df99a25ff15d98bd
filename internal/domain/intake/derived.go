package intake

import (
	"strconv"
	"strings"
	"time"
)

// Trimester is a pregnancy window derived from the gestational month.
type Trimester int

const (
	TrimesterUnknown Trimester = iota
	TrimesterFirst
	TrimesterSecond
	TrimesterThird
)

func (t Trimester) String() string {
	switch t {
	case TrimesterFirst:
		return "first"
	case TrimesterSecond:
		return "second"
	case TrimesterThird:
		return "third"
	}
	return "unknown"
}

func parseTrimester(s string) (Trimester, bool) {
	switch s {
	case "first":
		return TrimesterFirst, true
	case "second":
		return TrimesterSecond, true
	case "third":
		return TrimesterThird, true
	}
	return TrimesterUnknown, false
}

// PregnancyNumber returns the parsed pregnancy-number answer.
func (f *Fields) PregnancyNumber() (int, bool) {
	n, ok := parseCount(f.CurrentPregnancy.PregnancyNumber)
	if !ok || n < 1 {
		return 0, false
	}
	return n, true
}

// IsFirstPregnancy returns the stored first-pregnancy flag, falling back to
// the pregnancy number when the flag was never derived.
func (f *Fields) IsFirstPregnancy() (first, known bool) {
	if f.CurrentPregnancy.FirstPregnancy != nil {
		return *f.CurrentPregnancy.FirstPregnancy, true
	}
	n, ok := f.PregnancyNumber()
	if !ok {
		return false, false
	}
	return n == 1, true
}

// GestationalMonth returns the parsed month of pregnancy.
func (f *Fields) GestationalMonth() (int, bool) {
	n, ok := parseCount(f.CurrentPregnancy.GestationalMonth)
	if !ok || n < 1 {
		return 0, false
	}
	return clampMonth(n), true
}

// Trimester is recomputed from the month on every call.
func (f *Fields) Trimester() Trimester {
	m, ok := f.GestationalMonth()
	if !ok {
		return TrimesterUnknown
	}
	switch {
	case m <= 3:
		return TrimesterFirst
	case m <= 6:
		return TrimesterSecond
	default:
		return TrimesterThird
	}
}

// miscarriages returns the number of prior pregnancy losses; a bare "yes"
// counts as one.
func (f *Fields) miscarriages() (int, bool) {
	ans := f.ObstetricHistory.Miscarriages
	if n, ok := parseCount(ans); ok {
		return n, true
	}
	if VocabAffirmative.Matches(ans) {
		return 1, true
	}
	return 0, false
}

// ChildCount returns the number of living prior children. It prefers the
// direct answer and otherwise infers it from the pregnancy number minus
// losses.
func (f *Fields) ChildCount() (int, bool) {
	if n, ok := parseChildTotal(f.ObstetricHistory.LivingChildren); ok {
		return n, true
	}
	if f.ObstetricHistory.LivingChildren != "" {
		return 0, false
	}
	preg, ok := f.PregnancyNumber()
	if !ok {
		return 0, false
	}
	lost, ok := f.miscarriages()
	if !ok {
		return 0, false
	}
	n := preg - 1 - lost
	if n < 0 {
		n = 0
	}
	return n, true
}

var twinsPhrases = []string{"twin", "twins", "judwan", "jurwan", "جڑواں", "two babies", "2 babies"}

// TwinsDetected inspects the ultrasound and living-children answers for any
// mention of twins.
func (f *Fields) TwinsDetected() bool {
	return DetectTwins(f.CurrentPregnancy.Ultrasound, f.ObstetricHistory.LivingChildren)
}

// DetectTwins reports whether any of the answers mentions twins. A mention
// preceded by a negation in the same clause ("no twins") does not count.
func DetectTwins(answers ...string) bool {
	for _, a := range answers {
		for _, clause := range splitClauses(a) {
			if mentionsUnnegated(normalize(clause), twinsPhrases) {
				return true
			}
		}
	}
	return false
}

var clauseBreaks = strings.NewReplacer(
	",", "\n", ".", "\n", ";", "\n", "!", "\n", "?", "\n", "،", "\n", "۔", "\n",
	" but ", "\n", " lekin ", "\n", " magar ", "\n",
)

func splitClauses(text string) []string {
	return strings.Split(clauseBreaks.Replace(strings.ToLower(text)), "\n")
}

// mentionsUnnegated reports whether norm contains one of phrases with no
// negation word before it.
func mentionsUnnegated(norm string, phrases []string) bool {
	for _, p := range phrases {
		idx := strings.Index(norm, " "+strings.ToLower(p)+" ")
		if idx < 0 {
			continue
		}
		if !containsAny(norm[:idx+1], negations) {
			return true
		}
	}
	return false
}

// deriveAfterAnswer updates values computed from a freshly written answer.
// It never overwrites a populated leaf.
func deriveAfterAnswer(r *Record, path string, now time.Time) {
	cp := &r.Fields.CurrentPregnancy
	switch path {
	case "current_pregnancy.pregnancy_number":
		if n, ok := r.Fields.PregnancyNumber(); ok {
			first := n == 1
			cp.FirstPregnancy = &first
		}
	case "current_pregnancy.lmp_date":
		if cp.GestationalMonth != "" {
			return
		}
		if lmp, ok := parseDate(cp.LMPDate); ok {
			if m, ok := monthFromLMP(lmp, now); ok {
				cp.GestationalMonth = strconv.Itoa(m)
			}
		}
	case "current_pregnancy.edd_date":
		if cp.GestationalMonth != "" {
			return
		}
		if edd, ok := parseDate(cp.EDDDate); ok {
			if m, ok := monthFromEDD(edd, now); ok {
				cp.GestationalMonth = strconv.Itoa(m)
			}
		}
	}
}

// dateRecalled reports whether a date field yielded a usable date.
func dateRecalled(value string) bool {
	if value == "" || value == NotRecalled {
		return false
	}
	_, ok := parseDate(value)
	return ok
}
