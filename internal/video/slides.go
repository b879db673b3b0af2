// Package video composes the slide frames for a puzzle and assembles
// them into an mp4 with ffmpeg.
package video

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/model"
	"github.com/gridshorts/pipeline/internal/render"
)

// Slide is one frame file plus how long it stays on screen.
type Slide struct {
	Path     string
	Duration float64
}

// introHooks are cycled deterministically by puzzle index so a batch
// gets varied intros without randomness.
var introHooks = []string{
	"Only 2% can solve this",
	"Can YOU spot the pattern?",
	"This one fools almost everyone",
	"IQ test: are you ready?",
	"Most people get this wrong",
}

var (
	slideBG     = color.RGBA{18, 18, 28, 255}
	slideText   = color.RGBA{240, 240, 245, 255}
	slideAccent = color.RGBA{255, 196, 0, 255}
)

// Composer builds the slide sequence for one puzzle in a scratch dir.
type Composer struct {
	video config.VideoConfig
}

func NewComposer(cfg config.VideoConfig) *Composer {
	return &Composer{video: cfg}
}

// Compose writes the slide PNGs for the puzzle into dir and returns
// them in presentation order: intro, puzzle (with countdown frames),
// answer reveal, explanation.
func (c *Composer) Compose(p *model.Puzzle, puzzleImage []byte, dir string) ([]Slide, error) {
	img, err := png.Decode(bytes.NewReader(puzzleImage))
	if err != nil {
		return nil, fmt.Errorf("decode puzzle image: %w", err)
	}

	var slides []Slide

	intro := c.renderIntro(introText(p))
	introPath := filepath.Join(dir, "slide_intro.png")
	if err := writePNG(introPath, intro); err != nil {
		return nil, err
	}
	slides = append(slides, Slide{Path: introPath, Duration: c.video.IntroSec})

	puzzleSlides, err := c.renderPuzzleSlides(img, dir)
	if err != nil {
		return nil, err
	}
	slides = append(slides, puzzleSlides...)

	answer := c.renderAnswer(p)
	answerPath := filepath.Join(dir, "slide_answer.png")
	if err := writePNG(answerPath, answer); err != nil {
		return nil, err
	}
	slides = append(slides, Slide{Path: answerPath, Duration: c.video.AnswerSec})

	expl := c.renderExplanation(p)
	explPath := filepath.Join(dir, "slide_explanation.png")
	if err := writePNG(explPath, expl); err != nil {
		return nil, err
	}
	slides = append(slides, Slide{Path: explPath, Duration: c.video.ExplanationSec})

	return slides, nil
}

func (c *Composer) canvas() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.video.Width, c.video.Height))
	stddraw.Draw(img, img.Bounds(), &image.Uniform{slideBG}, image.Point{}, stddraw.Src)
	return img
}

// introText prefers the puzzle's own question; a hook from the rotation
// stands in when the question is missing or too long to fit the intro
// layout. Chosen by index, not randomly, so composition stays
// reproducible.
func introText(p *model.Puzzle) string {
	q := strings.TrimSpace(p.QuestionText)
	if q != "" && len(q) <= maxIntroLen {
		return q
	}
	return introHooks[p.Index%len(introHooks)]
}

const maxIntroLen = 44

func (c *Composer) renderIntro(text string) *image.RGBA {
	img := c.canvas()
	render.DrawTextCentered(img, text, c.video.Width/2, c.video.Height/2-60, 6, slideText)
	render.DrawTextCentered(img, "Sound ON. Timer starts now.", c.video.Width/2, c.video.Height/2+80, 3, slideAccent)
	return img
}

// renderPuzzleSlides shows the puzzle card, then overlays a countdown
// for the last CountdownStart seconds of the puzzle segment.
func (c *Composer) renderPuzzleSlides(puzzle image.Image, dir string) ([]Slide, error) {
	base := c.canvas()
	c.placePuzzle(base, puzzle)

	countdown := c.video.CountdownStart
	plain := c.video.PuzzleSec - float64(countdown)
	if plain < 0 {
		countdown = int(c.video.PuzzleSec)
		plain = c.video.PuzzleSec - float64(countdown)
	}

	var slides []Slide
	if plain > 0 {
		path := filepath.Join(dir, "slide_puzzle.png")
		if err := writePNG(path, base); err != nil {
			return nil, err
		}
		slides = append(slides, Slide{Path: path, Duration: plain})
	}

	// Countdown box sits top-left, clear of the centred puzzle card.
	boxSize := c.video.Width / 8
	for n := countdown; n >= 1; n-- {
		frame := image.NewRGBA(base.Bounds())
		stddraw.Draw(frame, frame.Bounds(), base, image.Point{}, stddraw.Src)
		stddraw.Draw(frame, image.Rect(0, 0, boxSize, boxSize),
			&image.Uniform{slideAccent}, image.Point{}, stddraw.Src)
		render.DrawTextCentered(frame, fmt.Sprintf("%d", n),
			boxSize/2, boxSize/2, 7, slideBG)
		path := filepath.Join(dir, fmt.Sprintf("slide_countdown_%d.png", n))
		if err := writePNG(path, frame); err != nil {
			return nil, err
		}
		slides = append(slides, Slide{Path: path, Duration: 1})
	}
	return slides, nil
}

// placePuzzle scales the card to fit the video width and centres it.
func (c *Composer) placePuzzle(dst *image.RGBA, puzzle image.Image) {
	pb := puzzle.Bounds()
	targetW := c.video.Width * 95 / 100
	targetH := pb.Dy() * targetW / pb.Dx()
	if targetH > c.video.Height {
		targetH = c.video.Height
		targetW = pb.Dx() * targetH / pb.Dy()
	}
	x := (c.video.Width - targetW) / 2
	y := (c.video.Height - targetH) / 2
	xdraw.CatmullRom.Scale(dst, image.Rect(x, y, x+targetW, y+targetH), puzzle, pb, xdraw.Over, nil)
}

func (c *Composer) renderAnswer(p *model.Puzzle) *image.RGBA {
	img := c.canvas()
	render.DrawTextCentered(img, "The answer is", c.video.Width/2, c.video.Height/3, 4, slideText)
	render.DrawTextCentered(img, p.AnswerLabel(), c.video.Width/2, c.video.Height/2, 16, slideAccent)
	render.DrawTextCentered(img, p.CorrectAnswer, c.video.Width/2, c.video.Height*2/3, 3, slideText)
	return img
}

func (c *Composer) renderExplanation(p *model.Puzzle) *image.RGBA {
	img := c.canvas()
	render.DrawTextCentered(img, "Why?", c.video.Width/2, c.video.Height/4, 6, slideAccent)
	lines := wrapText(p.Explanation, 36)
	const lineSpacing = 52
	startY := c.video.Height/2 - (len(lines)-1)*lineSpacing/2
	for i, line := range lines {
		render.DrawTextCentered(img, line, c.video.Width/2, startY+i*lineSpacing, 3, slideText)
	}
	render.DrawTextCentered(img, "Follow for more puzzles", c.video.Width/2, c.video.Height*5/6, 3, slideText)
	return img
}

// wrapText breaks the text into lines of at most width characters,
// splitting on word boundaries.
func wrapText(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode slide: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write slide: %w", err)
	}
	return nil
}
