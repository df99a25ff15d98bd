package intake

import (
	"errors"
	"testing"
	"time"
)

func TestRecord_SetGet(t *testing.T) {
	rec := NewRecord("p", testNow)

	if err := rec.Set("medical.diabetes", "  no  "); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	got, err := rec.Get("medical.diabetes")
	if err != nil || got != "no" {
		t.Errorf("Get() = %q, %v", got, err)
	}
	if !rec.Answered("medical.diabetes") || rec.Answered("medical.thyroid") {
		t.Error("unexpected Answered result")
	}
}

func TestRecord_SetNeverOverwrites(t *testing.T) {
	rec := NewRecord("p", testNow)
	_ = rec.Set("personal.diet", "rice and lentils")

	if err := rec.Set("personal.diet", "bread"); !errors.Is(err, ErrFieldPopulated) {
		t.Errorf("expected ErrFieldPopulated, got %v", err)
	}
	if rec.Fields.Personal.Diet != "rice and lentils" {
		t.Errorf("value was overwritten: %q", rec.Fields.Personal.Diet)
	}

	if err := rec.Overwrite("personal.diet", "bread"); err != nil {
		t.Fatalf("Overwrite() error: %v", err)
	}
	if rec.Fields.Personal.Diet != "bread" {
		t.Errorf("Overwrite did not apply: %q", rec.Fields.Personal.Diet)
	}
}

func TestRecord_SetEmptyIsNoop(t *testing.T) {
	rec := NewRecord("p", testNow)
	if err := rec.Set("personal.diet", "   "); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if rec.Answered("personal.diet") {
		t.Error("blank value must not mark the field answered")
	}
}

func TestRecord_UnknownField(t *testing.T) {
	rec := NewRecord("p", testNow)
	for _, path := range []string{"medical.nope", "issue.bleeding.nope", "issue.headache.onset", "issue.bleeding"} {
		if err := rec.Set(path, "x"); !errors.Is(err, ErrUnknownField) {
			t.Errorf("Set(%q): expected ErrUnknownField, got %v", path, err)
		}
		if _, err := rec.Get(path); !errors.Is(err, ErrUnknownField) {
			t.Errorf("Get(%q): expected ErrUnknownField, got %v", path, err)
		}
		if KnownPath(path) {
			t.Errorf("KnownPath(%q) = true", path)
		}
	}
}

func TestRecord_IssueAnswers(t *testing.T) {
	rec := NewRecord("p", testNow)
	path := IssueFieldPath(IssueFever, "onset")
	if path != "issue.fever.onset" {
		t.Fatalf("unexpected path %q", path)
	}
	if !KnownPath(path) {
		t.Fatal("issue path must be known")
	}
	if err := rec.Set(path, "two days ago"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if rec.Fields.IssueAnswers["fever.onset"] != "two days ago" {
		t.Errorf("unexpected issue answers %v", rec.Fields.IssueAnswers)
	}
	if err := rec.Set(path, "yesterday"); !errors.Is(err, ErrFieldPopulated) {
		t.Errorf("expected ErrFieldPopulated, got %v", err)
	}
}

func TestFieldPaths_Sorted(t *testing.T) {
	paths := FieldPaths()
	if len(paths) != len(fieldPaths) {
		t.Fatalf("expected %d paths, got %d", len(fieldPaths), len(paths))
	}
	for i := 1; i < len(paths); i++ {
		if paths[i-1] >= paths[i] {
			t.Fatalf("paths not sorted at %d: %q >= %q", i, paths[i-1], paths[i])
		}
	}
}

func TestFields_CloneIsDeep(t *testing.T) {
	first := true
	f := Fields{IssueAnswers: map[string]string{"fever.onset": "today"}}
	f.CurrentPregnancy.FirstPregnancy = &first

	c := f.Clone()
	c.IssueAnswers["fever.onset"] = "changed"
	*c.CurrentPregnancy.FirstPregnancy = false

	if f.IssueAnswers["fever.onset"] != "today" || !*f.CurrentPregnancy.FirstPregnancy {
		t.Error("Clone shares state with the original")
	}
}

func TestRecord_TransitionForwardOnly(t *testing.T) {
	rec := NewRecord("p", testNow)
	if err := rec.transition(PhaseQuestionnaire); err != nil {
		t.Fatalf("forward transition failed: %v", err)
	}
	if err := rec.transition(PhaseQuestionnaire); err != nil {
		t.Errorf("same-phase transition failed: %v", err)
	}
	if err := rec.transition(PhaseDemographics); !errors.Is(err, ErrPhaseRegression) {
		t.Errorf("expected ErrPhaseRegression, got %v", err)
	}
	if err := rec.transition(Phase("triage")); !errors.Is(err, ErrPhaseRegression) {
		t.Errorf("expected an error for an unknown phase, got %v", err)
	}
	if rec.Phase != PhaseQuestionnaire {
		t.Errorf("phase changed on a rejected transition: %s", rec.Phase)
	}
}

func TestParseAlertLevel(t *testing.T) {
	if lvl, err := ParseAlertLevel("red"); err != nil || lvl != AlertRed {
		t.Errorf("ParseAlertLevel(red) = %q, %v", lvl, err)
	}
	if _, err := ParseAlertLevel("orange"); err == nil {
		t.Error("expected an error for orange")
	}
}

// -- Derived values --

func TestFields_IsFirstPregnancy(t *testing.T) {
	tests := []struct {
		answer string
		first  bool
		known  bool
	}{
		{"first", true, true},
		{"1", true, true},
		{"my third", false, true},
		{"pehli", true, true},
		{"not sure", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		var f Fields
		f.CurrentPregnancy.PregnancyNumber = tt.answer
		first, known := f.IsFirstPregnancy()
		if first != tt.first || known != tt.known {
			t.Errorf("%q: got %v/%v, want %v/%v", tt.answer, first, known, tt.first, tt.known)
		}
	}
}

func TestFields_ChildCount(t *testing.T) {
	tests := []struct {
		name         string
		pregnancy    string
		miscarriages string
		living       string
		want         int
		ok           bool
	}{
		{"direct answer", "4", "", "two", 2, true},
		{"inferred", "3", "1", "", 1, true},
		{"bare yes counts one loss", "3", "yes", "", 1, true},
		{"never negative", "2", "3", "", 0, true},
		{"sons and daughters summed", "3", "no", "one son and one daughter", 2, true},
		{"digits summed", "5", "no", "2 sons, 1 daughter", 3, true},
		{"collective count is the total", "4", "no", "two children, one boy and one girl", 2, true},
		{"single daughter", "3", "no", "just one daughter", 1, true},
		{"unparseable direct answer", "3", "no", "a few", 0, false},
		{"losses unknown", "3", "", "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Fields
			f.CurrentPregnancy.PregnancyNumber = tt.pregnancy
			f.ObstetricHistory.Miscarriages = tt.miscarriages
			f.ObstetricHistory.LivingChildren = tt.living
			n, ok := f.ChildCount()
			if n != tt.want || ok != tt.ok {
				t.Errorf("got %d/%v, want %d/%v", n, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFields_Trimester(t *testing.T) {
	for month, want := range map[string]Trimester{
		"":   TrimesterUnknown,
		"2":  TrimesterFirst,
		"3":  TrimesterFirst,
		"4":  TrimesterSecond,
		"6":  TrimesterSecond,
		"7":  TrimesterThird,
		"12": TrimesterThird,
	} {
		var f Fields
		f.CurrentPregnancy.GestationalMonth = month
		if got := f.Trimester(); got != want {
			t.Errorf("month %q: got %s, want %s", month, got, want)
		}
	}
}

func TestDetectTwins(t *testing.T) {
	if !DetectTwins("", "I have twins") || !DetectTwins("two babies on the scan") {
		t.Error("expected twins")
	}
	if DetectTwins("one baby", "two children") {
		t.Error("unexpected twins")
	}

	for _, answer := range []string{
		"Normal scan, a single baby, no twins",
		"not twins, just one baby",
		"doctor said there are no twins",
	} {
		if DetectTwins(answer) {
			t.Errorf("%q: negated mention counted as twins", answer)
		}
	}
	if !DetectTwins("no problems on the scan, twins confirmed") {
		t.Error("a negation in another clause must not hide twins")
	}
}

func TestDeriveAfterAnswer(t *testing.T) {
	rec := NewRecord("p", testNow)
	rec.Fields.CurrentPregnancy.PregnancyNumber = "second"
	deriveAfterAnswer(rec, "current_pregnancy.pregnancy_number", testNow)
	if fp := rec.Fields.CurrentPregnancy.FirstPregnancy; fp == nil || *fp {
		t.Errorf("expected FirstPregnancy=false, got %v", fp)
	}

	rec.Fields.CurrentPregnancy.LMPDate = "2026-06-01"
	deriveAfterAnswer(rec, "current_pregnancy.lmp_date", testNow)
	if rec.Fields.CurrentPregnancy.GestationalMonth != "5" {
		t.Errorf("expected month 5, got %q", rec.Fields.CurrentPregnancy.GestationalMonth)
	}

	// an existing month is never overwritten
	rec.Fields.CurrentPregnancy.EDDDate = "2027-02-01"
	deriveAfterAnswer(rec, "current_pregnancy.edd_date", testNow)
	if rec.Fields.CurrentPregnancy.GestationalMonth != "5" {
		t.Errorf("month overwritten: %q", rec.Fields.CurrentPregnancy.GestationalMonth)
	}

	other := NewRecord("p", testNow)
	other.Fields.CurrentPregnancy.LMPDate = NotRecalled
	deriveAfterAnswer(other, "current_pregnancy.lmp_date", time.Now())
	if other.Fields.CurrentPregnancy.GestationalMonth != "" {
		t.Error("a date that was not recalled must not derive a month")
	}
}
