// Package generator obtains structured puzzles from the chat completion
// service and validates them against the puzzle schema.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gridshorts/pipeline/internal/model"
	"github.com/gridshorts/pipeline/internal/pipeline"
)

// ChatCompleter is the slice of the LLM client the generator needs.
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
	IsConfigured() bool
}

// Generator produces validated matrix-reasoning puzzles.
type Generator struct {
	llm      ChatCompleter
	validate *validator.Validate
}

// New creates a generator backed by the given LLM client.
func New(llm ChatCompleter, validate *validator.Validate) *Generator {
	return &Generator{llm: llm, validate: validate}
}

// Generate requests one puzzle at the given difficulty and returns it
// validated, with the caller's id and index stamped on. Malformed or
// schema-violating model output is a terminal error for this attempt;
// the stage executor decides whether the surrounding stage retries.
func (g *Generator) Generate(ctx context.Context, id string, index, difficulty int) (*model.Puzzle, error) {
	if g.llm == nil || !g.llm.IsConfigured() {
		return nil, pipeline.Auth("generate", fmt.Errorf("LLM client not configured"))
	}

	response, err := g.llm.ChatCompletion(ctx, systemPrompt(), userPrompt(difficulty))
	if err != nil {
		return nil, fmt.Errorf("puzzle generation: %w", err)
	}

	var p model.Puzzle
	if err := json.Unmarshal([]byte(extractJSON(response)), &p); err != nil {
		return nil, pipeline.Terminal("generate", fmt.Errorf("invalid JSON in model output: %w", err))
	}

	// The caller owns identity; whatever the model put in "id" is
	// replaced by the allocated one.
	p.ID = id
	p.Index = index
	p.Difficulty = difficulty

	if err := model.ValidatePuzzle(g.validate, &p); err != nil {
		return nil, pipeline.Terminal("generate", err)
	}
	return &p, nil
}

func systemPrompt() string {
	return fmt.Sprintf(`You are an expert designer of IQ-style and Raven's Progressive Matrices puzzles. Your puzzles are used in short-form video content where viewers expect a real challenge. They should have to stop, look again, and think.

Generate matrix reasoning puzzles that feel like real IQ-test items: multi-step logic, subtle patterns, and several plausible wrong answers so solvers must eliminate options rather than guess.

IMPORTANT: Your response must be ONLY valid JSON matching this exact schema:

%s

Difficulty and thinking required:
- The rule(s) should not be obvious at first glance. Combine at least two dimensions (e.g., shape + fill + position, or rotation + count + size).
- Patterns can work by row, by column, or by diagonal.
- question_text should be short and natural (e.g., "Which one completes the pattern?"). Do not sound like a textbook.

grid_logic format:
- Use: "row1: [elements]; row2: [elements]; row3: [elements]; rule: [clear pattern description]"
- Elements: shapes (circle, square, triangle, diamond, star), modifiers (filled, large, small), and "?" for the missing cell.

Options (%d to %d):
- Format each option as "LABEL: shape-description" (e.g., "A: large-filled-triangle").
- Include plausible distractors; only one option is fully correct.

Return ONLY the JSON object, no additional text or markdown.`, model.SchemaPrompt(), model.MinOptions, model.MaxOptions)
}

func userPrompt(difficulty int) string {
	// Bias toward 6-7 options; higher difficulty earns more options.
	n := model.MinOptions + difficulty/3
	if n > model.MaxOptions {
		n = model.MaxOptions
	}
	lastLabel := model.OptionLabels[n-1]
	return fmt.Sprintf(
		"Generate a matrix reasoning puzzle with difficulty %d/10. "+
			"Include %d answer options (A through %s) with plausible distractors. "+
			"The pattern should require real thought (multi-step or subtle). Return only valid JSON.",
		difficulty, n, lastLabel)
}

// extractJSON pulls the JSON object out of a response that may contain
// extra text around it.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
