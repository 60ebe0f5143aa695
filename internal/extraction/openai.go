package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"freightcall-platform/internal/config"
	"freightcall-platform/internal/transcripts"

	openai "github.com/sashabaranov/go-openai"
)

const coreSystemPrompt = `You are a CRM analyst for a freight brokerage.
Given a diarized sales call transcript, extract structured CRM data.
Respond with a single JSON object matching the requested schema exactly.
qualification_score is an integer from 0 to 100. Unknown string values are
empty strings, unknown lists are empty arrays. Never invent facts that are
not supported by the transcript.`

const templateSystemPrompt = `You are a CRM analyst for a freight brokerage.
Given a diarized sales call transcript and a list of custom field
definitions, extract a value for each field. Respond with a single JSON
object of the form {"fields": [{"field_name": string, "value": any,
"confidence": number}]}. Include one entry per requested field. Use an
empty string value when the transcript does not answer the field.`

// OpenAIExtractor runs both extraction passes through the OpenAI chat
// completion API with JSON-mode responses.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

func NewOpenAIExtractor(cfg config.OpenAIConfig) *OpenAIExtractor {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &OpenAIExtractor{client: openai.NewClientWithConfig(c), model: cfg.Model}
}

func (e *OpenAIExtractor) ModelTag() string { return "openai:" + e.model }

func (e *OpenAIExtractor) Extract(ctx context.Context, req CoreRequest) (CoreExtraction, error) {
	var prompt strings.Builder
	prompt.WriteString("Extract the CRM attribute set as JSON with keys: summary, key_points, next_steps, pain_points, requirements, budget, timeline, decision_maker, product_interest, competitors, objections, buying_signals, call_outcome, qualification_score, urgency_level, sentiment, raw {customer_company, industry, company_size, current_solution, technical_requirements}.\n\n")
	if req.CustomerNameHint != "" {
		fmt.Fprintf(&prompt, "Customer name hint: %s\n", req.CustomerNameHint)
	}
	if req.CallTypeHint != "" {
		fmt.Fprintf(&prompt, "Call type hint: %s\n", req.CallTypeHint)
	}
	prompt.WriteString("\nTranscript:\n")
	prompt.WriteString(renderTranscript(req.TranscriptText, req.Utterances, req.RoleMap))

	content, err := e.complete(ctx, coreSystemPrompt, prompt.String())
	if err != nil {
		return CoreExtraction{}, err
	}

	var out CoreExtraction
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return CoreExtraction{}, fmt.Errorf("%w: decode core response: %v", ErrExtractionFailure, err)
	}
	if out.QualificationScore < 0 {
		out.QualificationScore = 0
	}
	if out.QualificationScore > 100 {
		out.QualificationScore = 100
	}
	return out, nil
}

func (e *OpenAIExtractor) ExtractFields(ctx context.Context, req TemplateRequest) ([]TemplateFieldResult, error) {
	var prompt strings.Builder
	prompt.WriteString("Fields to extract:\n")
	for _, d := range req.FieldDefs {
		fmt.Fprintf(&prompt, "- %s (type: %s)\n", d.Name, d.Type)
	}
	prompt.WriteString("\nTranscript:\n")
	prompt.WriteString(renderTranscript(req.TranscriptText, req.Utterances, req.RoleMap))

	content, err := e.complete(ctx, templateSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	var out struct {
		Fields []struct {
			FieldName  string  `json:"field_name"`
			Value      any     `json:"value"`
			Confidence float64 `json:"confidence"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("%w: decode template response: %v", ErrExtractionFailure, err)
	}

	results := make([]TemplateFieldResult, 0, len(out.Fields))
	for _, f := range out.Fields {
		results = append(results, TemplateFieldResult{
			FieldName:  f.FieldName,
			Value:      f.Value,
			Confidence: f.Confidence,
		})
	}
	return results, nil
}

func (e *OpenAIExtractor) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailure, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrExtractionFailure)
	}
	return resp.Choices[0].Message.Content, nil
}

// renderTranscript labels each utterance with its mapped role so the model
// sees who is speaking. Falls back to the flat text when diarization is
// unavailable.
func renderTranscript(text string, utterances []transcripts.Utterance, roles map[string]string) string {
	if len(utterances) == 0 {
		return text
	}
	var b strings.Builder
	for _, u := range utterances {
		role := roles[u.Speaker]
		if role == "" {
			role = "speaker_" + u.Speaker
		}
		fmt.Fprintf(&b, "[%s] %s\n", role, u.Text)
	}
	return b.String()
}
