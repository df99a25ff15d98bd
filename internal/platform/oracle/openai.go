package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ehr/intake/internal/domain/intake"
)

const DefaultModel = "gpt-4o-mini"

// Config selects the OpenAI account and model.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAI answers extraction and assessment requests with JSON-mode chat
// completions.
type OpenAI struct {
	client *openai.Client
	model  string
	now    func() time.Time
}

func NewOpenAI(cfg Config) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc), model: model, now: time.Now}
}

const extractionSystem = `You extract one answer from a pregnant patient's chat message for a maternity clinic intake form.
Patients write informally, in English, Urdu or Roman Urdu, and may answer partially.
Reply with a JSON object {"value": string, "is_valid_answer": boolean}.
- value is the answer to the question in short English, normalized (numbers as digits, dates as YYYY-MM-DD).
- For a question asking how many, value is the total as digits ("one son and one daughter" is "2").
- A negative answer such as "no" or "none" is a valid answer.
- If the message does not answer the question, or the patient does not know, set is_valid_answer to false and value to "".`

type extractionInput struct {
	Question string `json:"question"`
	Field    string `json:"field"`
	Answer   string `json:"answer"`
	Today    string `json:"today"`
}

func (o *OpenAI) Extract(ctx context.Context, req intake.ExtractionRequest) (intake.Extraction, error) {
	in, err := json.Marshal(extractionInput{
		Question: req.Prompt,
		Field:    req.FieldPath,
		Answer:   req.Utterance,
		Today:    o.now().Format("2006-01-02"),
	})
	if err != nil {
		return intake.Extraction{}, err
	}
	var out intake.Extraction
	if err := o.complete(ctx, extractionSystem, string(in), &out); err != nil {
		return intake.Extraction{}, fmt.Errorf("extract %s: %w", req.FieldPath, err)
	}
	out.Value = strings.TrimSpace(out.Value)
	if out.Value == "" {
		out.Valid = false
	}
	return out, nil
}

const assessmentSystem = `You are a senior gynecologist triaging a completed maternity intake interview.
RED: emergency, e.g. heavy bleeding, leaking fluid, absent fetal movement, severe headache or blurred vision, fits, high fever with pain.
YELLOW: needs a doctor soon, e.g. moderate or persistent symptoms, raised blood pressure or sugar, anemia.
GREEN: routine care, mild or no symptoms.
Reply with a JSON object {"alert_level": "red"|"yellow"|"green", "assessment_summary": string, "clinical_impression": string, "recommendations": [string]}.
The summary is addressed to the patient in two or three plain sentences.`

type assessmentInput struct {
	Identity      intake.Identity `json:"identity"`
	VisitNumber   int             `json:"visit_number"`
	DetectedIssue intake.Issue    `json:"detected_issue,omitempty"`
	Fields        intake.Fields   `json:"fields"`
	Skipped       []string        `json:"skipped_questions,omitempty"`
}

type assessmentOutput struct {
	AlertLevel         intake.AlertLevel `json:"alert_level"`
	Summary            string            `json:"assessment_summary"`
	ClinicalImpression string            `json:"clinical_impression"`
	Recommendations    json.RawMessage   `json:"recommendations"`
}

func (o *OpenAI) Assess(ctx context.Context, rec *intake.Record) (intake.AssessmentResult, error) {
	in, err := json.Marshal(assessmentInput{
		Identity:      rec.Identity,
		VisitNumber:   rec.VisitNumber,
		DetectedIssue: rec.DetectedIssue,
		Fields:        rec.Fields,
		Skipped:       rec.Skipped,
	})
	if err != nil {
		return intake.AssessmentResult{}, err
	}
	var out assessmentOutput
	if err := o.complete(ctx, assessmentSystem, string(in), &out); err != nil {
		return intake.AssessmentResult{}, fmt.Errorf("assess: %w", err)
	}
	return intake.AssessmentResult{
		AlertLevel:         intake.AlertLevel(strings.ToLower(strings.TrimSpace(string(out.AlertLevel)))),
		Summary:            out.Summary,
		ClinicalImpression: out.ClinicalImpression,
		Recommendations:    decodeRecommendations(out.Recommendations),
	}, nil
}

// decodeRecommendations accepts either a list or a single string.
func decodeRecommendations(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && strings.TrimSpace(one) != "" {
		return []string{one}
	}
	return nil
}

func (o *OpenAI) complete(ctx context.Context, system, user string, out any) error {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return classify(err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("empty completion")
	}
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	return nil
}

// classify wraps client errors that a retry cannot fix in ErrNonRetryable.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", ErrNonRetryable, err)
	}
	return err
}
