package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/model"
)

func testPuzzle() *model.Puzzle {
	return &model.Puzzle{
		ID:            "puzzle_001",
		PuzzleType:    "matrix_reasoning",
		Difficulty:    5,
		QuestionText:  "Which one completes the pattern?",
		GridLogic:     "row1: [circle, filled-circle, large-circle]; row2: [square, filled-square, large-square]; row3: [triangle, filled-triangle, ?]; rule: each row repeats a shape with different modifiers",
		Options:       []string{"A: large-triangle", "B: star", "C: small-diamond", "D: filled-circle", "E: square"},
		CorrectAnswer: "A: large-triangle",
		Explanation:   "Each row cycles through plain, filled and large variants.",
	}
}

func TestRenderProducesDecodablePNG(t *testing.T) {
	r := New(&config.ImageConfig{Width: 540, Height: 675})

	data, err := r.Render(testPuzzle())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 540, img.Bounds().Dx())
	assert.Equal(t, 675, img.Bounds().Dy())
}

func TestRenderIsDeterministic(t *testing.T) {
	r := New(&config.ImageConfig{Width: 540, Height: 675})
	p := testPuzzle()

	first, err := r.Render(p)
	require.NoError(t, err)
	second, err := r.Render(p)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "identical puzzles must produce identical bytes")
}

func TestRenderDiffersForDifferentPuzzles(t *testing.T) {
	r := New(&config.ImageConfig{Width: 540, Height: 675})

	first, err := r.Render(testPuzzle())
	require.NoError(t, err)

	other := testPuzzle()
	other.GridLogic = "row1: [star, star, star]; row2: [diamond, diamond, diamond]; row3: [circle, circle, ?]; rule: rows repeat"
	second, err := r.Render(other)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(first, second))
}

func TestRenderNilPuzzle(t *testing.T) {
	r := New(&config.ImageConfig{Width: 100, Height: 100})
	_, err := r.Render(nil)
	assert.Error(t, err)
}

func TestParseGridLogic(t *testing.T) {
	g := ParseGridLogic("row1: [circle, square, triangle]; row2: [filled-square, large-star, small-diamond]; row3: [triangle, circle, ?]; rule: shapes rotate left")

	assert.Equal(t, "shapes rotate left", g.Rule)
	assert.Equal(t, Cell{Shape: "circle"}, g.Cells[0][0])
	assert.Equal(t, Cell{Shape: "square", Filled: true}, g.Cells[1][0])
	assert.Equal(t, Cell{Shape: "star", Size: "large"}, g.Cells[1][1])
	assert.Equal(t, Cell{Shape: "diamond", Size: "small"}, g.Cells[1][2])
	assert.True(t, g.Cells[2][2].Missing)
}

func TestParseGridLogicFallback(t *testing.T) {
	for _, input := range []string{"", "complete nonsense", "rule: only a rule"} {
		g := ParseGridLogic(input)
		assert.True(t, g.Cells[2][2].Missing, "fallback grid keeps a missing cell for %q", input)
		assert.NotEmpty(t, g.Cells[0][0].Shape)
	}
}

func TestParseCell(t *testing.T) {
	assert.Equal(t, Cell{Missing: true}, ParseCell(" ? "))
	assert.Equal(t, Cell{Shape: "circle"}, ParseCell("circle"))
	assert.Equal(t, Cell{Shape: "triangle", Filled: true, Size: "large"}, ParseCell("large-filled-triangle"))
	assert.Equal(t, Cell{Shape: "star", Filled: true}, ParseCell("SOLID_STAR"))

	unknown := ParseCell("hexagon")
	assert.Equal(t, "square", unknown.Shape, "unknown shapes degrade to a neutral placeholder")
	assert.Equal(t, "small", unknown.Size)
}
