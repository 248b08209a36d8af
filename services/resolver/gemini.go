// Package resolversvc implements column resolution with Google's Gemini models.
package resolversvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/reportcardpro/backend/core"
	"github.com/reportcardpro/backend/core/report"
)

var ErrNotConfigured = errors.New("column resolver is not configured")

// generator is the part of the genai client used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiResolver struct {
	gen    generator
	model  string
	logger core.Logger
}

var _ report.Resolver = (*GeminiResolver)(nil)

func NewGeminiResolver(ctx context.Context, conf *core.Config, logger core.Logger) (*GeminiResolver, error) {
	if conf.Resolver.APIKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.Resolver.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	return newGeminiResolver(client.Models, conf.Resolver.Model, logger), nil
}

func newGeminiResolver(gen generator, model string, logger core.Logger) *GeminiResolver {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiResolver{gen: gen, model: model, logger: logger}
}

func (r *GeminiResolver) ResolveColumns(ctx context.Context, filename, sample string) (report.ColumnResolution, error) {
	resp, err := r.gen.GenerateContent(ctx, r.model, genai.Text(buildPrompt(filename, sample)), generateConfig())
	if err != nil {
		return report.ColumnResolution{}, errors.Wrap(err, "generating column resolution")
	}

	text := strings.TrimSpace(resp.Text())
	res, err := report.DecodeResolution([]byte(text))
	if err != nil {
		r.logger.Warn("unusable column resolution", map[string]interface{}{
			"file":   filename,
			"model":  r.model,
			"answer": text,
		}, err)
		return report.ColumnResolution{}, errors.Wrap(report.ErrInvalidResolution, err.Error())
	}
	return res, nil
}

func buildPrompt(filename, sample string) string {
	return fmt.Sprintf(`Analyze the following CSV snippet and filename to identify key metadata.

Filename: %q
CSV Snippet:
---
%s
---

Identify the columns for student names, learner IDs, and subjects. Also determine the overall grade and class identifier (e.g. "Grade 9", "Class A") for this entire file. The grade and class may appear in the filename or within the data columns.

Return a JSON object with the exact column header for the student's name, the learner ID, an array of the exact column headers for the subjects, the grade, and the class name. The JSON must follow this schema: { "nameColumn": string, "learnerIdColumn": string, "subjectColumns": string[], "grade": string, "className": string }. For example, if the grade is 9 and the class is 'H', return { "grade": "9", "className": "H" }. If the filename is "Grade 10A Marks.csv", return { "grade": "10", "className": "A" }.`,
		filename, sample)
}

func generateConfig() *genai.GenerateContentConfig {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"nameColumn":      str("The header of the column containing student names."),
				"learnerIdColumn": str("The header of the column containing the learner's unique ID."),
				"subjectColumns": {
					Type:        genai.TypeArray,
					Items:       &genai.Schema{Type: genai.TypeString},
					Description: "An array of headers for the columns containing subject scores.",
				},
				"grade":     str("The grade number for the students in this file, e.g. '9', '10'."),
				"className": str("The class identifier for the students in this file, e.g. 'A', 'H', 'Science'."),
			},
			Required: []string{"nameColumn", "learnerIdColumn", "subjectColumns", "grade", "className"},
		},
	}
}

// New returns the Gemini resolver, or Disabled when no API key is configured.
func New(ctx context.Context, conf *core.Config, logger core.Logger) (report.Resolver, error) {
	gemini, err := NewGeminiResolver(ctx, conf, logger)
	if errors.Cause(err) == ErrNotConfigured {
		logger.Warn("no resolver API key: uploads will be rejected")
		return Disabled{}, nil
	}
	if err != nil {
		return nil, err
	}
	return gemini, nil
}

// Disabled answers every resolution with ErrNotConfigured.
// It lets the API run without a Gemini key; uploads then fail with a resolution error.
type Disabled struct{}

var _ report.Resolver = Disabled{}

func (Disabled) ResolveColumns(context.Context, string, string) (report.ColumnResolution, error) {
	return report.ColumnResolution{}, ErrNotConfigured
}
