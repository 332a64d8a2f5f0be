package lesson

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a named JSON Schema definition. The same definition drives the
// provider's structured-output request and the validation of its reply.
type Schema struct {
	Name       string
	Definition map[string]any
}

// LessonSchema describes the JSON a lesson generator must return.
var LessonSchema = &Schema{
	Name: "lesson",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string", "description": "A lesson title that fits the story"},
			"sentences": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"english": map[string]any{"type": "string"},
						"korean":  map[string]any{"type": "string"},
						"grammar": map[string]any{"type": "string"},
						"vocabulary": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"word":    map[string]any{"type": "string"},
									"meaning": map[string]any{"type": "string"},
								},
								"required": []any{"word", "meaning"},
							},
						},
					},
					"required": []any{"english", "korean", "grammar", "vocabulary"},
				},
			},
		},
		"required": []any{"title", "sentences"},
	},
}

// EvaluationSchema describes a pronunciation evaluation reply.
var EvaluationSchema = &Schema{
	Name: "evaluation",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":    map[string]any{"type": "number", "description": "Pronunciation score from 0 to 100"},
			"feedback": map[string]any{"type": "string", "description": "Short feedback in Korean"},
		},
		"required": []any{"score", "feedback"},
	},
}

// schemaCache caches compiled schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// Validate checks raw JSON against the schema.
func (s *Schema) Validate(raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	compiled, err := s.compiled()
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", s.Name, err)
	}

	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

func (s *Schema) compiled() (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(s.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a decoded JSON value, so round-trip the definition.
	defBytes, err := json.Marshal(s.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema definition: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse schema definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", s.Name)
	if err := c.AddResource(url, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	schemaCache.Store(s.Name, compiled)
	return compiled, nil
}

// Decode validates raw JSON against LessonSchema and decodes it.
func Decode(raw []byte) (*Lesson, error) {
	if err := LessonSchema.Validate(raw); err != nil {
		return nil, err
	}
	var l Lesson
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode lesson: %w", err)
	}
	l.Normalize()
	return &l, nil
}
