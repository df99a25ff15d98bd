package intake

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Vocabulary names a small controlled word list used by answer gates.
type Vocabulary string

const (
	VocabNormalDelivery    Vocabulary = "normal_delivery"
	VocabOperativeDelivery Vocabulary = "operative_delivery"
	VocabAffirmative       Vocabulary = "affirmative"
)

var vocabularies = map[Vocabulary][]string{
	VocabNormalDelivery: {
		"normal", "vaginal", "natural", "normal delivery", "without operation", "نارمل",
	},
	VocabOperativeDelivery: {
		"operation", "c section", "c-section", "csection", "cesarean", "caesarean",
		"caesarian", "cesarian", "surgery", "bara operation", "آپریشن",
	},
	VocabAffirmative: {
		"yes", "yeah", "yep", "yup", "haan", "han", "ji", "jee", "ji haan", "sure",
		"correct", "right", "i am", "i do", "taking", "ہاں", "جی",
	},
}

var negations = []string{
	"no", "not", "nope", "never", "none", "nahi", "nahin", "nai", "don't", "dont",
	"didn't", "didnt", "haven't", "havent", "without", "نہیں",
}

// Valid reports whether v names a known vocabulary.
func (v Vocabulary) Valid() bool {
	_, ok := vocabularies[v]
	return ok
}

// Matches reports whether text belongs to vocabulary v. Negated answers never
// match the affirmative vocabulary or a normal delivery.
func (v Vocabulary) Matches(text string) bool {
	norm := normalize(text)
	if norm == "" {
		return false
	}
	switch v {
	case VocabAffirmative:
		if containsAny(norm, negations) {
			return false
		}
	case VocabNormalDelivery:
		if containsAny(norm, []string{"not normal", "wasn't normal", "wasnt normal", "abnormal"}) {
			return false
		}
	}
	return containsAny(norm, vocabularies[v])
}

// normalize lowercases text and collapses every non letter/digit run
// (apostrophes and hyphens kept) into a single space, padded at both ends
// so that whole-word phrases can be found with a substring search.
func normalize(text string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '\'' || r == '-' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	s := b.String()
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

func containsAny(norm string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(norm, " "+strings.ToLower(p)+" ") {
			return true
		}
	}
	return false
}

// NotRecalled is the value stored for a date the patient cannot remember.
const NotRecalled = "not_recalled"

var notRecalledPhrases = []string{
	"don't know", "dont know", "do not know", "not sure", "don't remember", "dont remember",
	"do not remember", "can't remember", "cant remember", "no idea", "forgot", "not recalled",
	"not_recalled", "pata nahi", "yaad nahi", "maloom nahi", "معلوم نہیں", "یاد نہیں",
}

// IsNotRecalled reports whether text says the patient cannot recall the answer.
func IsNotRecalled(text string) bool {
	return containsAny(normalize(text), notRecalledPhrases)
}

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"ek": 1, "teen": 3, "char": 4, "chaar": 4, "panch": 5, "paanch": 5,
	"chay": 6, "chhe": 6, "saat": 7, "aath": 8, "nau": 9,
	"pehla": 1, "pehli": 1, "doosra": 2, "doosri": 2, "dusra": 2, "dusri": 2,
	"teesra": 3, "teesri": 3, "chotha": 4, "chothi": 4,
	"ایک": 1, "دو": 2, "تین": 3, "چار": 4, "پانچ": 5,
}

var zeroWords = []string{"no", "none", "nahi", "nahin", "never", "koi nahi", "zero", "nil"}

// parseCount extracts the first count mentioned in text. A purely negative
// answer ("no", "none") counts as zero.
func parseCount(text string) (int, bool) {
	norm := normalize(text)
	if norm == "" {
		return 0, false
	}
	for _, tok := range strings.Fields(norm) {
		if n, err := strconv.Atoi(stripOrdinal(tok)); err == nil && n >= 0 {
			return n, true
		}
		if n, ok := numberWords[tok]; ok {
			return n, true
		}
	}
	if containsAny(norm, zeroWords) {
		return 0, true
	}
	return 0, false
}

var ordinalWords = map[string]bool{
	"first": true, "second": true, "third": true, "fourth": true, "fifth": true,
	"sixth": true, "seventh": true, "eighth": true, "ninth": true, "tenth": true,
	"pehla": true, "pehli": true, "doosra": true, "doosri": true, "dusra": true, "dusri": true,
	"teesra": true, "teesri": true, "chotha": true, "chothi": true,
}

var (
	childNouns = map[string]bool{
		"son": true, "sons": true, "daughter": true, "daughters": true,
		"boy": true, "boys": true, "girl": true, "girls": true,
		"beta": true, "betay": true, "bete": true, "beti": true, "betiyan": true, "betian": true,
		"larka": true, "larkay": true, "larke": true, "larki": true, "larkiyan": true,
		"بیٹا": true, "بیٹے": true, "بیٹی": true, "بیٹیاں": true,
	}
	collectiveNouns = map[string]bool{
		"child": true, "children": true, "kid": true, "kids": true, "baby": true, "babies": true,
		"bacha": true, "bachay": true, "bachey": true, "bache": true, "bachon": true, "بچے": true,
	}
)

// cardinal parses a digit run or a cardinal number word.
func cardinal(tok string) (int, bool) {
	if n, err := strconv.Atoi(tok); err == nil && n >= 0 {
		return n, true
	}
	if ordinalWords[tok] {
		return 0, false
	}
	n, ok := numberWords[tok]
	return n, ok
}

// parseChildTotal counts children in an answer such as "one son and two
// daughters". A count attached to a collective noun ("two children") is the
// total; counts attached to sons and daughters are summed. Anything else
// falls back to parseCount.
func parseChildTotal(text string) (int, bool) {
	toks := strings.Fields(normalize(text))
	sum, found := 0, false
	for i, tok := range toks {
		n, ok := cardinal(tok)
		if !ok {
			continue
		}
		// Allow one word between the count and the noun ("two little boys").
		for j := i + 1; j < len(toks) && j <= i+2; j++ {
			if collectiveNouns[toks[j]] {
				return n, true
			}
			if childNouns[toks[j]] {
				sum += n
				found = true
				break
			}
			if _, isNum := cardinal(toks[j]); isNum {
				break
			}
		}
	}
	if found {
		return sum, true
	}
	return parseCount(text)
}

func stripOrdinal(tok string) string {
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if trimmed, ok := strings.CutSuffix(tok, suffix); ok && trimmed != "" {
			return trimmed
		}
	}
	return tok
}

// parseDate accepts the ISO form produced by the extraction oracle plus a
// few common day-first spellings.
func parseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range []string{"2006-01-02", "02/01/2006", "2/1/2006", "02-01-2006", "2 January 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

const (
	daysPerMonth   = 30.44
	termPregnancy  = 280 * 24 * time.Hour
	maxGestational = 10
)

func clampMonth(m int) int {
	if m < 1 {
		return 1
	}
	if m > maxGestational {
		return maxGestational
	}
	return m
}

// monthFromLMP returns the gestational month implied by a last-period date.
func monthFromLMP(lmp, now time.Time) (int, bool) {
	if lmp.After(now) {
		return 0, false
	}
	days := now.Sub(lmp).Hours() / 24
	return clampMonth(int(days/daysPerMonth) + 1), true
}

// monthFromEDD returns the gestational month implied by a due date.
func monthFromEDD(edd, now time.Time) (int, bool) {
	elapsed := termPregnancy - edd.Sub(now)
	if elapsed < 0 {
		return 0, false
	}
	days := elapsed.Hours() / 24
	return clampMonth(int(days/daysPerMonth) + 1), true
}
