package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reply is the outcome of one turn. Text is always a single prompt or
// statement; NextPrompt repeats the question being asked, if any.
type Reply struct {
	Text           string         `json:"reply"`
	NextPrompt     string         `json:"next_prompt,omitempty"`
	TerminalAction TerminalAction `json:"terminal_action"`
}

// maxReprompts is how many times an unanswerable question is repeated
// before the interview moves past it.
const maxReprompts = 1

const (
	greetingText   = "Assalam-o-Alaikum! I am the clinic's intake assistant and I will ask you a few questions before your visit. "
	complaintText  = "What problem or concern brings you in today? If this is a routine check-up, just say so."
	repromptPrefix = "Sorry, I did not catch that. "
	closingText    = "Your intake for this visit is complete and has been shared with the doctor. Send a message any time to start a new visit."
)

var identityQuestions = []struct {
	path   string
	prompt string
}{
	{"identity.name", "To get started, what is your full name?"},
	{"identity.age", "How old are you?"},
	{"identity.contact", "What phone number can the clinic reach you on?"},
}

var dateFields = map[string]bool{
	"current_pregnancy.lmp_date": true,
	"current_pregnancy.edd_date": true,
}

// Engine is the phase state machine. It mutates the record handed to it
// and performs no persistence or locking.
type Engine struct {
	catalog   *Catalog
	issues    *IssueCatalog
	resolver  *Resolver
	extractor Extractor
	assessor  Assessor
	now       func() time.Time
	logger    zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithCatalog replaces the built-in question catalog.
func WithCatalog(c *Catalog) EngineOption {
	return func(e *Engine) { e.catalog = c }
}

// WithIssues replaces the built-in issue catalog.
func WithIssues(c *IssueCatalog) EngineOption {
	return func(e *Engine) { e.issues = c }
}

func NewEngine(extractor Extractor, assessor Assessor, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:   DefaultCatalog(),
		issues:    DefaultIssues(),
		extractor: extractor,
		assessor:  assessor,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = NewResolver(e.catalog)
	return e
}

// Catalog returns the question catalog the engine walks.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Issues returns the issue catalog the engine classifies against.
func (e *Engine) Issues() *IssueCatalog { return e.issues }

// Resolver returns the engine's precondition resolver.
func (e *Engine) Resolver() *Resolver { return e.resolver }

// Handle applies one patient utterance to rec and returns the reply.
func (e *Engine) Handle(ctx context.Context, rec *Record, utterance string) (Reply, error) {
	utterance = strings.TrimSpace(utterance)
	e.appendLog(rec, RolePatient, utterance)

	reply, err := e.dispatch(ctx, rec, utterance)
	if err != nil {
		return Reply{}, err
	}
	if reply.TerminalAction == "" {
		reply.TerminalAction = ActionNone
	}
	e.appendLog(rec, RoleAssistant, reply.Text)
	rec.UpdatedAt = e.now()
	return reply, nil
}

func (e *Engine) dispatch(ctx context.Context, rec *Record, utterance string) (Reply, error) {
	switch rec.Phase {
	case PhaseOnboarding:
		return e.onboarding(ctx, rec, utterance)
	case PhaseDemographics:
		return e.demographics(ctx, rec, utterance)
	case PhaseProblemCollection:
		return e.problemCollection(ctx, rec, utterance)
	case PhaseQuestionnaire:
		return e.questionnaire(ctx, rec, utterance)
	case PhaseAssessment:
		return e.assess(ctx, rec, "")
	case PhaseCompleted:
		return Reply{Text: closingText}, nil
	}
	return Reply{}, fmt.Errorf("dispatch: unknown phase %q", rec.Phase)
}

func (e *Engine) onboarding(ctx context.Context, rec *Record, utterance string) (Reply, error) {
	var prefix string
	if !rec.HasGreeted {
		rec.HasGreeted = true
		prefix = greetingText
	}

	returning := rec.Identity.Complete()
	if !returning && utterance != "" {
		for _, iq := range identityQuestions {
			if rec.Answered(iq.path) {
				continue
			}
			ext, err := e.extract(ctx, rec, iq.prompt, iq.path, utterance)
			if err != nil || !ext.Valid {
				continue
			}
			if err := rec.Set(iq.path, ext.Value); err != nil {
				e.logger.Warn().Err(err).Str("patient_id", rec.PatientID).Str("field", iq.path).Msg("identity field not written")
			}
		}
	}

	for _, iq := range identityQuestions {
		if !rec.Answered(iq.path) {
			return ask(prefix, iq.prompt), nil
		}
	}

	if returning {
		prefix += fmt.Sprintf("Welcome back, %s. ", rec.Identity.Name)
	} else {
		prefix += fmt.Sprintf("Thank you, %s. ", rec.Identity.Name)
	}
	if err := e.advance(rec, PhaseDemographics); err != nil {
		return Reply{}, err
	}
	rec.Cursor = e.resolver.NextEligibleBefore(0, e.catalog.DemographicsEnd(), rec)
	if rec.Cursor >= e.catalog.DemographicsEnd() {
		return e.startProblemCollection(rec, prefix)
	}
	return ask(prefix, e.catalog.At(rec.Cursor).Prompt), nil
}

func (e *Engine) demographics(ctx context.Context, rec *Record, utterance string) (Reply, error) {
	end := e.catalog.DemographicsEnd()
	if rec.Cursor >= end {
		return e.startProblemCollection(rec, "")
	}
	q := e.catalog.At(rec.Cursor)
	if e.answer(ctx, rec, q.Prompt, q.Field, utterance) == outcomeRetry {
		return ask(repromptPrefix, q.Prompt), nil
	}

	rec.Cursor = e.resolver.NextEligibleBefore(rec.Cursor+1, end, rec)
	if rec.Cursor >= end {
		return e.startProblemCollection(rec, "Thank you. ")
	}
	return ask("", e.catalog.At(rec.Cursor).Prompt), nil
}

func (e *Engine) startProblemCollection(rec *Record, prefix string) (Reply, error) {
	if err := e.advance(rec, PhaseProblemCollection); err != nil {
		return Reply{}, err
	}
	return ask(prefix, complaintText), nil
}

func (e *Engine) problemCollection(ctx context.Context, rec *Record, utterance string) (Reply, error) {
	if rec.Fields.ProblemDescription == "" {
		if utterance == "" {
			return ask("", complaintText), nil
		}
		if err := rec.Set("problem_description", utterance); err != nil {
			return Reply{}, fmt.Errorf("record complaint: %w", err)
		}
		issue := e.issues.Classify(utterance)
		rec.DetectedIssue = issue
		e.logger.Info().Str("patient_id", rec.PatientID).Str("issue", string(issue)).Msg("complaint classified")

		if issue == IssueRoutine {
			rec.IssueComplete = true
			return e.startQuestionnaire(ctx, rec, "Thank you. I have a few general questions for you. ")
		}
		rec.IssueCursor = e.issues.NextSubQuestion(issue, 0, rec)
		return ask("I am sorry to hear that. ", e.issues.Questions(issue)[rec.IssueCursor].Prompt), nil
	}

	subs := e.issues.Questions(rec.DetectedIssue)
	if rec.IssueComplete || rec.IssueCursor >= len(subs) {
		rec.IssueComplete = true
		return e.startQuestionnaire(ctx, rec, "")
	}

	sq := subs[rec.IssueCursor]
	if e.answer(ctx, rec, sq.Prompt, IssueFieldPath(rec.DetectedIssue, sq.ID), utterance) == outcomeRetry {
		return ask(repromptPrefix, sq.Prompt), nil
	}
	rec.IssueCursor = e.issues.NextSubQuestion(rec.DetectedIssue, rec.IssueCursor+1, rec)
	if rec.IssueCursor >= len(subs) {
		rec.IssueComplete = true
		return e.startQuestionnaire(ctx, rec, "Thank you. Now a few general questions about your health. ")
	}
	return ask("", subs[rec.IssueCursor].Prompt), nil
}

func (e *Engine) startQuestionnaire(ctx context.Context, rec *Record, prefix string) (Reply, error) {
	if err := e.advance(rec, PhaseQuestionnaire); err != nil {
		return Reply{}, err
	}
	rec.Cursor = e.resolver.NextEligible(e.catalog.DemographicsEnd(), rec)
	if e.catalog.Exhausted(rec.Cursor) {
		return e.assess(ctx, rec, prefix)
	}
	return ask(prefix, e.catalog.At(rec.Cursor).Prompt), nil
}

func (e *Engine) questionnaire(ctx context.Context, rec *Record, utterance string) (Reply, error) {
	if e.catalog.Exhausted(rec.Cursor) {
		return e.assess(ctx, rec, "")
	}
	q := e.catalog.At(rec.Cursor)

	if rec.FollowUpPending && q.FollowUp != nil {
		if e.answer(ctx, rec, q.FollowUp.Prompt, q.FollowUp.Field, utterance) == outcomeRetry {
			return ask(repromptPrefix, q.FollowUp.Prompt), nil
		}
		rec.FollowUpPending = false
	} else {
		outcome := e.answer(ctx, rec, q.Prompt, q.Field, utterance)
		if outcome == outcomeRetry {
			return ask(repromptPrefix, q.Prompt), nil
		}
		if outcome == outcomeAnswered && q.FollowUp != nil && !rec.Answered(q.FollowUp.Field) {
			rec.FollowUpPending = true
			return ask("", q.FollowUp.Prompt), nil
		}
	}

	rec.Cursor = e.resolver.NextEligible(rec.Cursor+1, rec)
	if e.catalog.Exhausted(rec.Cursor) {
		return e.assess(ctx, rec, "Thank you for answering all the questions. ")
	}
	return ask("", e.catalog.At(rec.Cursor).Prompt), nil
}

// assess runs the assessment at most once per visit and closes the visit.
func (e *Engine) assess(ctx context.Context, rec *Record, prefix string) (Reply, error) {
	if err := e.advance(rec, PhaseAssessment); err != nil {
		return Reply{}, err
	}
	if !rec.AssessmentComplete {
		a := e.runAssessment(ctx, rec)
		rec.Assessment = &a
		if rec.AlertLevel == "" {
			rec.AlertLevel = a.AlertLevel
		}
		rec.AssessmentComplete = true
	}
	if err := e.advance(rec, PhaseCompleted); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:           prefix + assessmentMessage(rec.Assessment),
		TerminalAction: ActionGenerateReport,
	}, nil
}

func (e *Engine) runAssessment(ctx context.Context, rec *Record) Assessment {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		res, err := e.assessor.Assess(ctx, rec.Clone())
		if err == nil {
			level, perr := ParseAlertLevel(string(res.AlertLevel))
			if perr == nil {
				return Assessment{
					AlertLevel:         level,
					Summary:            res.Summary,
					ClinicalImpression: res.ClinicalImpression,
					Recommendations:    res.Recommendations,
					AssessedAt:         e.now(),
				}
			}
			err = perr
		}
		lastErr = err
		e.logger.Warn().Err(err).Str("patient_id", rec.PatientID).Int("attempt", attempt).Msg("assessment failed")
	}
	e.logger.Error().Err(lastErr).Str("patient_id", rec.PatientID).Msg("assessment unavailable, using fallback")
	return fallbackAssessment(e.now())
}

func fallbackAssessment(now time.Time) Assessment {
	return Assessment{
		AlertLevel:         AlertYellow,
		Summary:            "Your answers have been recorded. An automatic assessment could not be completed, so a clinician will review them.",
		ClinicalImpression: "Requires further evaluation",
		Recommendations:    []string{"Arrange a review with your doctor"},
		Fallback:           true,
		AssessedAt:         now,
	}
}

var alertAdvice = map[AlertLevel]string{
	AlertRed:    "Your answers show warning signs. Please go to the nearest hospital or contact your doctor immediately.",
	AlertYellow: "Please arrange to see your doctor within the next few days.",
	AlertGreen:  "Your answers do not show any warning signs. Keep up your regular check-ups.",
}

func assessmentMessage(a *Assessment) string {
	if a == nil {
		return closingText
	}
	msg := strings.TrimSpace(a.Summary)
	if advice := alertAdvice[a.AlertLevel]; advice != "" {
		if msg != "" {
			msg += "\n\n"
		}
		msg += advice
	}
	return msg
}

type answerOutcome int

const (
	outcomeAnswered answerOutcome = iota
	outcomeRetry
	outcomeSkipped
)

// answer extracts utterance into field. An unusable answer is re-asked
// once; after that the question is given up on and recorded as skipped.
func (e *Engine) answer(ctx context.Context, rec *Record, prompt, field, utterance string) answerOutcome {
	ext, err := e.extract(ctx, rec, prompt, field, utterance)
	value := strings.TrimSpace(ext.Value)
	valid := err == nil && ext.Valid && value != ""
	if !valid && dateFields[field] && IsNotRecalled(utterance) {
		value, valid = NotRecalled, true
	}

	if valid {
		if werr := rec.Set(field, value); werr != nil && !errors.Is(werr, ErrFieldPopulated) {
			e.logger.Error().Err(werr).Str("patient_id", rec.PatientID).Str("field", field).Msg("answer not written")
		} else {
			deriveAfterAnswer(rec, field, e.now())
			rec.Attempts = 0
			return outcomeAnswered
		}
	}

	rec.Attempts++
	if rec.Attempts <= maxReprompts {
		return outcomeRetry
	}
	rec.Attempts = 0
	rec.Skipped = append(rec.Skipped, field)
	e.logger.Warn().
		Str("patient_id", rec.PatientID).
		Str("field", field).
		Int("visit_number", rec.VisitNumber).
		Msg("question skipped after retry")
	return outcomeSkipped
}

func (e *Engine) extract(ctx context.Context, rec *Record, prompt, field, utterance string) (Extraction, error) {
	if utterance == "" {
		return Extraction{}, nil
	}
	ext, err := e.extractor.Extract(ctx, ExtractionRequest{
		Prompt:    prompt,
		FieldPath: field,
		Utterance: utterance,
		Record:    rec.Clone(),
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("patient_id", rec.PatientID).Str("field", field).Msg("extraction failed")
		return Extraction{}, err
	}
	return ext, nil
}

func (e *Engine) advance(rec *Record, to Phase) error {
	from := rec.Phase
	if from == to {
		return nil
	}
	if err := rec.transition(to); err != nil {
		return err
	}
	e.logger.Info().
		Str("patient_id", rec.PatientID).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("visit_number", rec.VisitNumber).
		Msg("phase transition")
	return nil
}

func (e *Engine) appendLog(rec *Record, role, text string) {
	if text == "" {
		return
	}
	rec.ConversationLog = append(rec.ConversationLog, Utterance{
		ID:    uuid.NewString(),
		Visit: rec.VisitNumber,
		Role:  role,
		Text:  text,
		At:    e.now(),
	})
}

func ask(prefix, prompt string) Reply {
	return Reply{Text: prefix + prompt, NextPrompt: prompt}
}
