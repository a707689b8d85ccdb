package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"github.com/easeaico/project-duet/internal/generation"
	"github.com/easeaico/project-duet/internal/types"
)

const extractionInstruction = `You turn one interview answer into structured personality records.
Given the question and the answer below, emit a JSON array of records. Each record has:
- "dimension": one of "personality", "values", "lifestyle", "preferences"
- "key": short snake_case identifier for what the record is about (e.g. "children", "openness")
- "content": one first-person sentence stating the fact
- "weight": importance or trait score in [0,1]
- "deal_breaker": true only when the answer states a hard, non-negotiable requirement

Emit only the JSON array. An empty array is valid when the answer holds nothing usable.`

// extractedRecord mirrors the JSON shape the extraction prompt requests.
type extractedRecord struct {
	Dimension   string  `json:"dimension"`
	Key         string  `json:"key"`
	Content     string  `json:"content"`
	Weight      float64 `json:"weight"`
	DealBreaker bool    `json:"deal_breaker"`
}

var extractionSchema = mustResolve(&jsonschema.Schema{
	Type: "array",
	Items: &jsonschema.Schema{
		Type:     "object",
		Required: []string{"dimension", "key", "content"},
		Properties: map[string]*jsonschema.Schema{
			"dimension": {
				Type: "string",
				Enum: []any{
					types.DimensionPersonality,
					types.DimensionValues,
					types.DimensionLifestyle,
					types.DimensionPreferences,
				},
			},
			"key":          {Type: "string"},
			"content":      {Type: "string"},
			"weight":       {Type: "number", Minimum: f64(0), Maximum: f64(1)},
			"deal_breaker": {Type: "boolean"},
		},
	},
})

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return resolved
}

func f64(v float64) *float64 { return &v }

// extractRecords asks the generator to structure one question/answer exchange
// into memory records and validates the result against the schema. Records
// that fail validation are dropped as a batch, not patched.
func extractRecords(ctx context.Context, gen generation.Generator, question, answer string) ([]types.MemoryRecord, error) {
	prompt := fmt.Sprintf("Question: %s\nAnswer: %s", question, answer)
	raw, err := gen.Generate(ctx, extractionInstruction, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	})
	if err != nil {
		return nil, err
	}

	cleaned := trimJSONFences(raw)

	var payload any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse extraction output: %w", err)
	}
	if err := extractionSchema.Validate(payload); err != nil {
		return nil, fmt.Errorf("extraction output failed validation: %w", err)
	}

	var extracted []extractedRecord
	if err := json.Unmarshal([]byte(cleaned), &extracted); err != nil {
		return nil, fmt.Errorf("failed to decode extraction output: %w", err)
	}

	records := make([]types.MemoryRecord, 0, len(extracted))
	for _, e := range extracted {
		records = append(records, types.MemoryRecord{
			Dimension:     e.Dimension,
			Key:           e.Key,
			Content:       e.Content,
			Weight:        types.Clamp01(e.Weight),
			SourceContext: question,
			DealBreaker:   e.DealBreaker,
		})
	}
	return records, nil
}

// trimJSONFences strips markdown code fences the model sometimes wraps JSON
// output in.
func trimJSONFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
