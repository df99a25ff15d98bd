package intake

import (
	"fmt"
	"sort"
	"strings"
)

// Fields is the interview-scoped part of a record. It is archived and
// cleared at every visit reset; Identity is kept on the Record instead.
type Fields struct {
	Demographics       Demographics      `json:"demographics"`
	CurrentPregnancy   CurrentPregnancy  `json:"current_pregnancy"`
	ObstetricHistory   ObstetricHistory  `json:"obstetric_history"`
	Gynecological      Gynecological     `json:"gynecological"`
	Medical            Medical           `json:"medical"`
	Surgical           Surgical          `json:"surgical"`
	Family             Family            `json:"family"`
	Personal           Personal          `json:"personal"`
	ProblemDescription string            `json:"problem_description,omitempty"`
	IssueAnswers       map[string]string `json:"issue_answers,omitempty"`
	Notes              string            `json:"notes,omitempty"`
}

type Demographics struct {
	MarriageDuration string `json:"marriage_duration,omitempty"`
}

type CurrentPregnancy struct {
	PregnancyNumber  string `json:"pregnancy_number,omitempty"`
	FirstPregnancy   *bool  `json:"first_pregnancy,omitempty"`
	LMPDate          string `json:"lmp_date,omitempty"`
	EDDDate          string `json:"edd_date,omitempty"`
	GestationalMonth string `json:"gestational_month,omitempty"`
	AntenatalVisits  string `json:"antenatal_visits,omitempty"`
	Ultrasound       string `json:"ultrasound,omitempty"`
	GestationalWeeks string `json:"gestational_weeks,omitempty"`
	GestationalDays  string `json:"gestational_days,omitempty"`
	Nausea           string `json:"nausea,omitempty"`
	FolicAcid        string `json:"folic_acid,omitempty"`
	FetalMovement    string `json:"fetal_movement,omitempty"`
	IronCalcium      string `json:"iron_calcium,omitempty"`
	TetanusVaccine   string `json:"tetanus_vaccine,omitempty"`
	Swelling         string `json:"swelling,omitempty"`
	HeadacheVision   string `json:"headache_vision,omitempty"`
}

type ObstetricHistory struct {
	Miscarriages     string                  `json:"miscarriages,omitempty"`
	LivingChildren   string                  `json:"living_children,omitempty"`
	SingleChild      SingleChildHistory      `json:"single_child"`
	MultipleChildren MultipleChildrenHistory `json:"multiple_children"`
}

type SingleChildHistory struct {
	BirthYear       string `json:"birth_year,omitempty"`
	DeliveryMode    string `json:"delivery_mode,omitempty"`
	LaborDuration   string `json:"labor_duration,omitempty"`
	OperationReason string `json:"operation_reason,omitempty"`
	DeliveryPlace   string `json:"delivery_place,omitempty"`
	Complications   string `json:"complications,omitempty"`
	BirthWeight     string `json:"birth_weight,omitempty"`
	BornOnTime      string `json:"born_on_time,omitempty"`
	Breastfeeding   string `json:"breastfeeding,omitempty"`
	ChildHealth     string `json:"child_health,omitempty"`
}

type MultipleChildrenHistory struct {
	YoungestAge     string `json:"youngest_age,omitempty"`
	DeliveryModes   string `json:"delivery_modes,omitempty"`
	LaborDuration   string `json:"labor_duration,omitempty"`
	OperationReason string `json:"operation_reason,omitempty"`
	OperationCount  string `json:"operation_count,omitempty"`
	DeliveryPlaces  string `json:"delivery_places,omitempty"`
	Complications   string `json:"complications,omitempty"`
	PretermBirths   string `json:"preterm_births,omitempty"`
	LowBirthWeight  string `json:"low_birth_weight,omitempty"`
	ChildrenHealth  string `json:"children_health,omitempty"`
}

type Gynecological struct {
	MenstrualCycle     string `json:"menstrual_cycle,omitempty"`
	FertilityTreatment string `json:"fertility_treatment,omitempty"`
	Contraception      string `json:"contraception,omitempty"`
	Infections         string `json:"infections,omitempty"`
}

type Medical struct {
	Diabetes        string `json:"diabetes,omitempty"`
	Hypertension    string `json:"hypertension,omitempty"`
	Thyroid         string `json:"thyroid,omitempty"`
	OtherConditions string `json:"other_conditions,omitempty"`
	Medications     string `json:"medications,omitempty"`
	Allergies       string `json:"allergies,omitempty"`
}

type Surgical struct {
	PreviousSurgeries string `json:"previous_surgeries,omitempty"`
	BloodTransfusion  string `json:"blood_transfusion,omitempty"`
}

type Family struct {
	DiabetesHypertension string `json:"diabetes_hypertension,omitempty"`
	Twins                string `json:"twins,omitempty"`
	GeneticConditions    string `json:"genetic_conditions,omitempty"`
}

type Personal struct {
	Diet      string `json:"diet,omitempty"`
	Smoking   string `json:"smoking,omitempty"`
	SleepMood string `json:"sleep_mood,omitempty"`
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	out := f
	if f.CurrentPregnancy.FirstPregnancy != nil {
		v := *f.CurrentPregnancy.FirstPregnancy
		out.CurrentPregnancy.FirstPregnancy = &v
	}
	if f.IssueAnswers != nil {
		out.IssueAnswers = make(map[string]string, len(f.IssueAnswers))
		for k, v := range f.IssueAnswers {
			out.IssueAnswers[k] = v
		}
	}
	return out
}

// fieldPaths maps every addressable dotted path to its leaf.
var fieldPaths = map[string]func(r *Record) *string{
	"identity.name":    func(r *Record) *string { return &r.Identity.Name },
	"identity.age":     func(r *Record) *string { return &r.Identity.Age },
	"identity.contact": func(r *Record) *string { return &r.Identity.Contact },

	"demographics.marriage_duration": func(r *Record) *string { return &r.Fields.Demographics.MarriageDuration },

	"current_pregnancy.pregnancy_number":  func(r *Record) *string { return &r.Fields.CurrentPregnancy.PregnancyNumber },
	"current_pregnancy.lmp_date":          func(r *Record) *string { return &r.Fields.CurrentPregnancy.LMPDate },
	"current_pregnancy.edd_date":          func(r *Record) *string { return &r.Fields.CurrentPregnancy.EDDDate },
	"current_pregnancy.gestational_month": func(r *Record) *string { return &r.Fields.CurrentPregnancy.GestationalMonth },
	"current_pregnancy.antenatal_visits":  func(r *Record) *string { return &r.Fields.CurrentPregnancy.AntenatalVisits },
	"current_pregnancy.ultrasound":        func(r *Record) *string { return &r.Fields.CurrentPregnancy.Ultrasound },
	"current_pregnancy.gestational_weeks": func(r *Record) *string { return &r.Fields.CurrentPregnancy.GestationalWeeks },
	"current_pregnancy.gestational_days":  func(r *Record) *string { return &r.Fields.CurrentPregnancy.GestationalDays },
	"current_pregnancy.nausea":            func(r *Record) *string { return &r.Fields.CurrentPregnancy.Nausea },
	"current_pregnancy.folic_acid":        func(r *Record) *string { return &r.Fields.CurrentPregnancy.FolicAcid },
	"current_pregnancy.fetal_movement":    func(r *Record) *string { return &r.Fields.CurrentPregnancy.FetalMovement },
	"current_pregnancy.iron_calcium":      func(r *Record) *string { return &r.Fields.CurrentPregnancy.IronCalcium },
	"current_pregnancy.tetanus_vaccine":   func(r *Record) *string { return &r.Fields.CurrentPregnancy.TetanusVaccine },
	"current_pregnancy.swelling":          func(r *Record) *string { return &r.Fields.CurrentPregnancy.Swelling },
	"current_pregnancy.headache_vision":   func(r *Record) *string { return &r.Fields.CurrentPregnancy.HeadacheVision },

	"obstetric_history.miscarriages":    func(r *Record) *string { return &r.Fields.ObstetricHistory.Miscarriages },
	"obstetric_history.living_children": func(r *Record) *string { return &r.Fields.ObstetricHistory.LivingChildren },

	"obstetric_history.single_child.birth_year":       func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.BirthYear },
	"obstetric_history.single_child.delivery_mode":    func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.DeliveryMode },
	"obstetric_history.single_child.labor_duration":   func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.LaborDuration },
	"obstetric_history.single_child.operation_reason": func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.OperationReason },
	"obstetric_history.single_child.delivery_place":   func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.DeliveryPlace },
	"obstetric_history.single_child.complications":    func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.Complications },
	"obstetric_history.single_child.birth_weight":     func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.BirthWeight },
	"obstetric_history.single_child.born_on_time":     func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.BornOnTime },
	"obstetric_history.single_child.breastfeeding":    func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.Breastfeeding },
	"obstetric_history.single_child.child_health":     func(r *Record) *string { return &r.Fields.ObstetricHistory.SingleChild.ChildHealth },

	"obstetric_history.multiple_children.youngest_age":     func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.YoungestAge },
	"obstetric_history.multiple_children.delivery_modes":   func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.DeliveryModes },
	"obstetric_history.multiple_children.labor_duration":   func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.LaborDuration },
	"obstetric_history.multiple_children.operation_reason": func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.OperationReason },
	"obstetric_history.multiple_children.operation_count":  func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.OperationCount },
	"obstetric_history.multiple_children.delivery_places":  func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.DeliveryPlaces },
	"obstetric_history.multiple_children.complications":    func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.Complications },
	"obstetric_history.multiple_children.preterm_births":   func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.PretermBirths },
	"obstetric_history.multiple_children.low_birth_weight": func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.LowBirthWeight },
	"obstetric_history.multiple_children.children_health":  func(r *Record) *string { return &r.Fields.ObstetricHistory.MultipleChildren.ChildrenHealth },

	"gynecological.menstrual_cycle":     func(r *Record) *string { return &r.Fields.Gynecological.MenstrualCycle },
	"gynecological.fertility_treatment": func(r *Record) *string { return &r.Fields.Gynecological.FertilityTreatment },
	"gynecological.contraception":       func(r *Record) *string { return &r.Fields.Gynecological.Contraception },
	"gynecological.infections":          func(r *Record) *string { return &r.Fields.Gynecological.Infections },

	"medical.diabetes":         func(r *Record) *string { return &r.Fields.Medical.Diabetes },
	"medical.hypertension":     func(r *Record) *string { return &r.Fields.Medical.Hypertension },
	"medical.thyroid":          func(r *Record) *string { return &r.Fields.Medical.Thyroid },
	"medical.other_conditions": func(r *Record) *string { return &r.Fields.Medical.OtherConditions },
	"medical.medications":      func(r *Record) *string { return &r.Fields.Medical.Medications },
	"medical.allergies":        func(r *Record) *string { return &r.Fields.Medical.Allergies },

	"surgical.previous_surgeries": func(r *Record) *string { return &r.Fields.Surgical.PreviousSurgeries },
	"surgical.blood_transfusion":  func(r *Record) *string { return &r.Fields.Surgical.BloodTransfusion },

	"family.diabetes_hypertension": func(r *Record) *string { return &r.Fields.Family.DiabetesHypertension },
	"family.twins":                 func(r *Record) *string { return &r.Fields.Family.Twins },
	"family.genetic_conditions":    func(r *Record) *string { return &r.Fields.Family.GeneticConditions },

	"personal.diet":       func(r *Record) *string { return &r.Fields.Personal.Diet },
	"personal.smoking":    func(r *Record) *string { return &r.Fields.Personal.Smoking },
	"personal.sleep_mood": func(r *Record) *string { return &r.Fields.Personal.SleepMood },

	"problem_description": func(r *Record) *string { return &r.Fields.ProblemDescription },
	"notes":               func(r *Record) *string { return &r.Fields.Notes },
}

const issuePathPrefix = "issue."

// IssueFieldPath returns the path an issue sub-answer is stored under.
func IssueFieldPath(issue Issue, subID string) string {
	return issuePathPrefix + string(issue) + "." + subID
}

// KnownPath reports whether path is addressable.
func KnownPath(path string) bool {
	if _, ok := fieldPaths[path]; ok {
		return true
	}
	return knownIssuePath(path)
}

// FieldPaths lists every static field path in sorted order.
func FieldPaths() []string {
	out := make([]string, 0, len(fieldPaths))
	for p := range fieldPaths {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func knownIssuePath(path string) bool {
	rest, ok := strings.CutPrefix(path, issuePathPrefix)
	if !ok {
		return false
	}
	cat, sub, ok := strings.Cut(rest, ".")
	if !ok {
		return false
	}
	def, ok := issueCatalog.byIssue[Issue(cat)]
	if !ok {
		return false
	}
	for _, q := range def.Questions {
		if q.ID == sub {
			return true
		}
	}
	return false
}

// Get returns the value stored at path; an empty string means unanswered.
func (r *Record) Get(path string) (string, error) {
	if leaf, ok := fieldPaths[path]; ok {
		return *leaf(r), nil
	}
	if knownIssuePath(path) {
		return r.Fields.IssueAnswers[strings.TrimPrefix(path, issuePathPrefix)], nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownField, path)
}

// Answered reports whether the leaf at path holds a value.
func (r *Record) Answered(path string) bool {
	v, err := r.Get(path)
	return err == nil && v != ""
}

// Set writes value at path unless the leaf is already populated.
func (r *Record) Set(path, value string) error {
	return r.write(path, value, false)
}

// Overwrite writes value at path regardless of its current content. It is
// reserved for questions that are explicitly re-asked.
func (r *Record) Overwrite(path, value string) error {
	return r.write(path, value, true)
}

func (r *Record) write(path, value string, overwrite bool) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if leaf, ok := fieldPaths[path]; ok {
		p := leaf(r)
		if *p != "" && !overwrite {
			return fmt.Errorf("%w: %s", ErrFieldPopulated, path)
		}
		*p = value
		return nil
	}
	if !knownIssuePath(path) {
		return fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	key := strings.TrimPrefix(path, issuePathPrefix)
	if r.Fields.IssueAnswers == nil {
		r.Fields.IssueAnswers = make(map[string]string)
	}
	if r.Fields.IssueAnswers[key] != "" && !overwrite {
		return fmt.Errorf("%w: %s", ErrFieldPopulated, path)
	}
	r.Fields.IssueAnswers[key] = value
	return nil
}
