package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Option count bounds: 5-8 options make the quiz feel substantial and
// force elimination instead of guessing.
const (
	MinOptions = 5
	MaxOptions = 8

	MinDifficulty = 1
	MaxDifficulty = 10
)

// OptionLabels are the allowed option prefixes (A through H).
var OptionLabels = []string{"A", "B", "C", "D", "E", "F", "G", "H"}

// Puzzle is a single matrix-reasoning puzzle as produced by the
// generation service, plus the sequential index assigned by the batch.
type Puzzle struct {
	ID            string   `json:"id" validate:"required"`
	Index         int      `json:"index,omitempty"`
	PuzzleType    string   `json:"puzzle_type" validate:"required,eq=matrix_reasoning"`
	Difficulty    int      `json:"difficulty" validate:"required,min=1,max=10"`
	QuestionText  string   `json:"question_text" validate:"required"`
	GridLogic     string   `json:"grid_logic" validate:"required"`
	Options       []string `json:"options" validate:"required,min=5,max=8,dive,required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Explanation   string   `json:"explanation" validate:"required"`
}

// ToJSON serialises the puzzle for metadata storage.
func (p *Puzzle) ToJSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// extractOptionLabel pulls the label out of strings like "A: foo".
// Returns "" when the string has no recognised single-letter prefix.
func extractOptionLabel(option string) string {
	prefix := strings.ToUpper(strings.TrimSpace(strings.SplitN(option, ":", 2)[0]))
	if len(prefix) != 1 {
		return ""
	}
	for _, l := range OptionLabels {
		if prefix == l {
			return prefix
		}
	}
	return ""
}

// ValidatePuzzle checks a puzzle decoded from model output against the
// schema and normalises the correct answer. The model sometimes answers
// with just a label ("B") while options are in "B: small-circle" form;
// that is accepted and mapped back to the full option string.
func ValidatePuzzle(validate *validator.Validate, p *Puzzle) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("puzzle schema validation: %w", err)
	}

	for i, opt := range p.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("option %d must be a non-empty string", i+1)
		}
	}

	answer := strings.TrimSpace(p.CorrectAnswer)
	for _, opt := range p.Options {
		if answer == opt {
			p.CorrectAnswer = answer
			return nil
		}
	}

	// Label-only answer: map "B" (or "B: ...") to the matching option.
	labelToOption := make(map[string]string)
	for _, opt := range p.Options {
		if l := extractOptionLabel(opt); l != "" {
			if _, ok := labelToOption[l]; !ok {
				labelToOption[l] = opt
			}
		}
	}
	label := extractOptionLabel(answer)
	if label == "" && len(answer) == 1 {
		label = strings.ToUpper(answer)
	}
	if mapped, ok := labelToOption[label]; ok {
		p.CorrectAnswer = mapped
		return nil
	}

	return fmt.Errorf("correct_answer %q not found in options", p.CorrectAnswer)
}

// AnswerLabel returns just the letter of the correct answer, for the
// reveal slide ("B: small-circle" -> "B").
func (p *Puzzle) AnswerLabel() string {
	if l := extractOptionLabel(p.CorrectAnswer); l != "" {
		return l
	}
	s := strings.TrimSpace(strings.ToUpper(p.CorrectAnswer))
	if s == "" {
		return "?"
	}
	return s[:1]
}

// SchemaPrompt is the JSON schema description embedded in the system
// prompt so the model returns parseable puzzles.
func SchemaPrompt() string {
	return fmt.Sprintf(`{
  "type": "object",
  "required": ["id", "puzzle_type", "difficulty", "question_text", "grid_logic", "options", "correct_answer", "explanation"],
  "properties": {
    "id": {"type": "string", "description": "Unique identifier (e.g., puzzle_001)"},
    "puzzle_type": {"type": "string", "enum": ["matrix_reasoning"]},
    "difficulty": {"type": "integer", "minimum": %d, "maximum": %d},
    "question_text": {"type": "string", "description": "Short natural question or instruction"},
    "grid_logic": {"type": "string", "description": "row1: [elements]; row2: [elements]; row3: [elements]; rule: [pattern description]; use ? for the missing cell"},
    "options": {"type": "array", "items": {"type": "string"}, "minItems": %d, "maxItems": %d, "description": "Answer options formatted as 'LABEL: shape-description' with plausible distractors"},
    "correct_answer": {"type": "string", "description": "Must be one of the options"},
    "explanation": {"type": "string", "description": "Explanation of the solution"}
  }
}`, MinDifficulty, MaxDifficulty, MinOptions, MaxOptions)
}
