package intake

import (
	"testing"
	"time"
)

func TestVocabulary_Matches(t *testing.T) {
	tests := []struct {
		vocab Vocabulary
		text  string
		want  bool
	}{
		{VocabAffirmative, "Yes", true},
		{VocabAffirmative, "ji haan, I am", true},
		{VocabAffirmative, "no", false},
		{VocabAffirmative, "yes but not anymore", false},
		{VocabAffirmative, "", false},
		{VocabNormalDelivery, "Normal delivery at home", true},
		{VocabNormalDelivery, "it was not normal", false},
		{VocabNormalDelivery, "abnormal", false},
		{VocabOperativeDelivery, "C-section", true},
		{VocabOperativeDelivery, "Caesarean in 2021", true},
		{VocabOperativeDelivery, "normal", false},
		// whole words only
		{VocabAffirmative, "yesterday", false},
	}
	for _, tt := range tests {
		if got := tt.vocab.Matches(tt.text); got != tt.want {
			t.Errorf("%s.Matches(%q) = %v, want %v", tt.vocab, tt.text, got, tt.want)
		}
	}
	if Vocabulary("maybe").Valid() {
		t.Error("unknown vocabulary must be invalid")
	}
}

func TestIsNotRecalled(t *testing.T) {
	for _, text := range []string{"I don't know", "Not sure", "pata nahi", "I forgot"} {
		if !IsNotRecalled(text) {
			t.Errorf("IsNotRecalled(%q) = false", text)
		}
	}
	for _, text := range []string{"2026-06-01", "in June", ""} {
		if IsNotRecalled(text) {
			t.Errorf("IsNotRecalled(%q) = true", text)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		text string
		n    int
		ok   bool
	}{
		{"3", 3, true},
		{"This is my 2nd", 2, true},
		{"third", 3, true},
		{"two children", 2, true},
		{"doosri", 2, true},
		{"none", 0, true},
		{"no", 0, true},
		{"many", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		n, ok := parseCount(tt.text)
		if n != tt.n || ok != tt.ok {
			t.Errorf("parseCount(%q) = %d, %v; want %d, %v", tt.text, n, ok, tt.n, tt.ok)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, text := range []string{"2026-06-01", "01/06/2026", "1 June 2026", " 2026-06-01 "} {
		got, ok := parseDate(text)
		if !ok || !got.Equal(want) {
			t.Errorf("parseDate(%q) = %v, %v", text, got, ok)
		}
	}
	if _, ok := parseDate("last summer"); ok {
		t.Error("free text must not parse")
	}
}

func TestGestationalMonthFromDates(t *testing.T) {
	tests := []struct {
		name string
		fn   func(time.Time, time.Time) (int, bool)
		date time.Time
		want int
		ok   bool
	}{
		{"lmp five months", monthFromLMP, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 5, true},
		{"lmp this week", monthFromLMP, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), 1, true},
		{"lmp in the future", monthFromLMP, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), 0, false},
		{"lmp long ago clamps", monthFromLMP, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 10, true},
		{"edd", monthFromEDD, time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC), 6, true},
		{"edd too far out", monthFromEDD, time.Date(2027, 12, 1, 0, 0, 0, 0, time.UTC), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.fn(tt.date, testNow)
			if got != tt.want || ok != tt.ok {
				t.Errorf("got %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}
