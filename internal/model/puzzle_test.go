package model

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPuzzle() *Puzzle {
	return &Puzzle{
		ID:            "puzzle_001",
		PuzzleType:    "matrix_reasoning",
		Difficulty:    5,
		QuestionText:  "Which one completes the pattern?",
		GridLogic:     "row1: [circle, square, triangle]; row2: [square, triangle, circle]; row3: [triangle, circle, ?]; rule: shapes rotate left each row",
		Options:       []string{"A: circle", "B: square", "C: triangle", "D: filled-circle", "E: diamond"},
		CorrectAnswer: "B: square",
		Explanation:   "Each row shifts the shapes one position to the left.",
	}
}

func TestValidatePuzzleAccepts(t *testing.T) {
	v := validator.New()
	p := validPuzzle()
	require.NoError(t, ValidatePuzzle(v, p))
	assert.Equal(t, "B: square", p.CorrectAnswer)
}

func TestValidatePuzzleNormalisesLabelAnswer(t *testing.T) {
	v := validator.New()
	p := validPuzzle()
	p.CorrectAnswer = "b"
	require.NoError(t, ValidatePuzzle(v, p))
	assert.Equal(t, "B: square", p.CorrectAnswer)
}

func TestValidatePuzzleRejects(t *testing.T) {
	v := validator.New()

	cases := map[string]func(*Puzzle){
		"wrong type":         func(p *Puzzle) { p.PuzzleType = "sudoku" },
		"difficulty too low": func(p *Puzzle) { p.Difficulty = 0 },
		"difficulty too big": func(p *Puzzle) { p.Difficulty = 11 },
		"too few options":    func(p *Puzzle) { p.Options = p.Options[:3] },
		"empty question":     func(p *Puzzle) { p.QuestionText = "" },
		"blank option":       func(p *Puzzle) { p.Options[2] = "   " },
		"answer not in options": func(p *Puzzle) {
			p.CorrectAnswer = "Z: hexagon"
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPuzzle()
			mutate(p)
			assert.Error(t, ValidatePuzzle(v, p))
		})
	}
}

func TestAnswerLabel(t *testing.T) {
	p := validPuzzle()
	assert.Equal(t, "B", p.AnswerLabel())

	p.CorrectAnswer = "d: something"
	assert.Equal(t, "D", p.AnswerLabel())
}
