package curriculum

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// quizSchema describes a *.quiz.yaml document after YAML decoding.
const quizSchema = `{
  "type": "object",
  "required": ["id", "topic", "questions"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "topic": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "teacher_id": {"type": "string"},
    "randomize_questions": {"type": "boolean"},
    "time_limit_minutes": {"type": "integer", "minimum": 0},
    "questions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "text", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "text": {"type": "string", "minLength": 1}
        },
        "oneOf": [
          {
            "properties": {
              "type": {"enum": ["multipleChoice"]},
              "options": {"type": "array", "minItems": 2, "items": {"type": "string"}},
              "correct_answer_index": {"type": "integer", "minimum": 0}
            },
            "required": ["options", "correct_answer_index"]
          },
          {
            "properties": {
              "type": {"enum": ["identification"]},
              "answer_key": {"type": "array", "minItems": 1, "maxItems": 1, "items": {"type": "string"}}
            },
            "required": ["answer_key"]
          },
          {
            "properties": {
              "type": {"enum": ["enumeration"]},
              "answer_key": {"type": "array", "minItems": 1, "items": {"type": "string"}}
            },
            "required": ["answer_key"]
          }
        ]
      }
    }
  }
}`

var quizSchemaLoader = gojsonschema.NewStringLoader(quizSchema)

// validateQuizDocument checks a decoded quiz document against quizSchema.
func validateQuizDocument(doc any) error {
	result, err := gojsonschema.Validate(quizSchemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validating quiz document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid quiz document: %s", strings.Join(msgs, "; "))
}
