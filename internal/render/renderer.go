// Package render turns a puzzle into a PNG quiz card. Rendering is
// fully deterministic: the same puzzle always encodes to the same
// bytes, so re-running a batch over existing inputs is reproducible.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/model"
)

var (
	white    = color.RGBA{255, 255, 255, 255}
	ink      = color.RGBA{20, 20, 30, 255}
	gridLine = color.RGBA{60, 60, 70, 255}
	accent   = color.RGBA{0, 102, 204, 255}
)

// Renderer draws puzzle cards at a fixed resolution.
type Renderer struct {
	width  int
	height int
}

// New creates a renderer for the configured image size.
func New(cfg *config.ImageConfig) *Renderer {
	return &Renderer{width: cfg.Width, height: cfg.Height}
}

// Render produces the PNG card for one puzzle: question header, 3x3
// matrix with the missing cell marked, and the options listed below.
func (r *Renderer) Render(p *model.Puzzle) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("render: nil puzzle")
	}
	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	stddraw.Draw(img, img.Bounds(), &image.Uniform{white}, image.Point{}, stddraw.Src)

	grid := ParseGridLogic(p.GridLogic)

	headerH := r.height / 8
	DrawTextCentered(img, p.QuestionText, r.width/2, headerH/2, 4, ink)

	gridSize := r.width * 8 / 10
	gridX := (r.width - gridSize) / 2
	gridY := headerH + r.height/40
	r.drawGrid(img, grid, gridX, gridY, gridSize)

	optTop := gridY + gridSize + r.height/30
	r.drawOptions(img, p.Options, optTop)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) drawGrid(img *image.RGBA, g Grid, x, y, size int) {
	cell := size / 3
	const line = 4

	for i := 0; i <= 3; i++ {
		// horizontal
		stddraw.Draw(img, image.Rect(x, y+i*cell-line/2, x+size, y+i*cell+line/2),
			&image.Uniform{gridLine}, image.Point{}, stddraw.Src)
		// vertical
		stddraw.Draw(img, image.Rect(x+i*cell-line/2, y, x+i*cell+line/2, y+size),
			&image.Uniform{gridLine}, image.Point{}, stddraw.Src)
	}

	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			box := image.Rect(x+col*cell, y+row*cell, x+(col+1)*cell, y+(row+1)*cell).Inset(cell / 8)
			c := g.Cells[row][col]
			if c.Missing {
				DrawTextCentered(img, "?", (box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2, 10, accent)
				continue
			}
			drawShape(img, box, c, ink)
		}
	}
}

func (r *Renderer) drawOptions(img *image.RGBA, options []string, top int) {
	lineH := (r.height - top) / (model.MaxOptions + 1)
	if lineH < 20 {
		lineH = 20
	}
	for i, opt := range options {
		y := top + i*lineH + lineH/2
		DrawTextCentered(img, opt, r.width/2, y, 3, ink)
	}
}

// DrawTextCentered rasterises the text with the fixed 7x13 face and
// scales it up with nearest-neighbour, keeping output byte-stable.
func DrawTextCentered(dst *image.RGBA, text string, cx, cy, scale int, col color.RGBA) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()
	if w == 0 || scale < 1 {
		return
	}

	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  small,
		Src:  &image.Uniform{col},
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: face.Metrics().Ascent},
	}
	d.DrawString(text)

	sw, sh := w*scale, h*scale
	target := image.Rect(cx-sw/2, cy-sh/2, cx-sw/2+sw, cy-sh/2+sh)
	xdraw.NearestNeighbor.Scale(dst, target, small, small.Bounds(), xdraw.Over, nil)
}
