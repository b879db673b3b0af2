package render

import (
	"strings"
)

// Cell is one grid position: a shape name plus modifiers, or the
// missing-cell marker.
type Cell struct {
	Shape   string
	Filled  bool
	Size    string // "", "large", "small"
	Missing bool
}

// Grid is the parsed 3x3 matrix plus the rule text extracted from the
// grid_logic string.
type Grid struct {
	Cells [3][3]Cell
	Rule  string
}

var knownShapes = map[string]bool{
	"circle":   true,
	"square":   true,
	"triangle": true,
	"diamond":  true,
	"star":     true,
}

// ParseGridLogic interprets the generator's grid_logic description:
//
//	row1: [circle, filled-circle, ?]; row2: [...]; row3: [...]; rule: ...
//
// The format is model-produced, so parsing is forgiving: unparseable
// rows fall back to a neutral placeholder grid rather than failing the
// item, keeping the render stage deterministic for any input string.
func ParseGridLogic(logic string) Grid {
	g := fallbackGrid()

	parts := strings.Split(logic, ";")
	rowIdx := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		switch {
		case strings.HasPrefix(lower, "rule:"):
			g.Rule = strings.TrimSpace(part[len("rule:"):])
		case strings.HasPrefix(lower, "row"):
			colon := strings.Index(part, ":")
			if colon == -1 || rowIdx >= 3 {
				continue
			}
			cells := parseRow(part[colon+1:])
			if len(cells) == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				if c < len(cells) {
					g.Cells[rowIdx][c] = cells[c]
				}
			}
			rowIdx++
		}
	}
	return g
}

func parseRow(s string) []Cell {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	fields := strings.Split(s, ",")
	cells := make([]Cell, 0, len(fields))
	for _, f := range fields {
		cells = append(cells, ParseCell(f))
	}
	return cells
}

// ParseCell turns a single element like "large-filled-triangle" or "?"
// into a Cell. Unknown tokens are ignored; an element with no known
// shape renders as a small neutral square so the grid stays legible.
func ParseCell(s string) Cell {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "?" || s == "" {
		return Cell{Missing: true}
	}

	var cell Cell
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for _, tok := range tokens {
		switch {
		case knownShapes[tok]:
			cell.Shape = tok
		case tok == "filled" || tok == "solid" || tok == "black":
			cell.Filled = true
		case tok == "large" || tok == "big":
			cell.Size = "large"
		case tok == "small" || tok == "tiny":
			cell.Size = "small"
		}
	}
	if cell.Shape == "" {
		cell.Shape = "square"
		cell.Size = "small"
	}
	return cell
}

// fallbackGrid is rendered when grid_logic is empty or has no parseable
// rows: a simple shape progression with the bottom-right cell missing.
func fallbackGrid() Grid {
	shapes := []string{"circle", "square", "triangle"}
	var g Grid
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			g.Cells[r][c] = Cell{Shape: shapes[(r+c)%3], Filled: r == c}
		}
	}
	g.Cells[2][2] = Cell{Missing: true}
	return g
}
