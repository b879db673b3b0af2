package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/pipeline"
)

// Encoder assembles slide frames into an mp4 by shelling out to ffmpeg.
type Encoder struct {
	cfg        config.VideoConfig
	ffmpegPath string
}

func NewEncoder(cfg config.VideoConfig) *Encoder {
	return &Encoder{cfg: cfg, ffmpegPath: "ffmpeg"}
}

// BuildArgs constructs the full ffmpeg argument list for concatenating
// the slides into one video. Pure function of its inputs, so tests can
// check the command without running ffmpeg.
func BuildArgs(cfg config.VideoConfig, slides []Slide, outPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	for _, s := range slides {
		args = append(args,
			"-loop", "1",
			"-t", formatSeconds(s.Duration),
			"-framerate", strconv.Itoa(cfg.FPS),
			"-i", s.Path,
		)
	}

	var filter strings.Builder
	for i := range slides {
		fmt.Fprintf(&filter,
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[v%d];",
			i, cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.FPS, i)
	}
	for i := range slides {
		fmt.Fprintf(&filter, "[v%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0[out]", len(slides))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-c:v", cfg.Codec,
		"-preset", cfg.Preset,
		"-crf", strconv.Itoa(cfg.CRF),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	)
	return args
}

// Encode runs ffmpeg over the slides and writes the video to outPath.
// A context deadline kills the process and is reported as transient;
// an ffmpeg failure is terminal and carries the stderr tail.
func (e *Encoder) Encode(ctx context.Context, slides []Slide, outPath string) error {
	if len(slides) == 0 {
		return pipeline.Terminal("encode", fmt.Errorf("no slides to encode"))
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath, BuildArgs(e.cfg, slides, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return pipeline.Transient("encode", fmt.Errorf("ffmpeg killed: %w", ctx.Err()))
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return pipeline.Terminal("encode", fmt.Errorf("ffmpeg not available: %w", err))
	}
	return pipeline.Terminal("encode", fmt.Errorf("ffmpeg failed: %w: %s", err, stderrTail(stderr.String())))
}

// stderrTail keeps the last few lines of ffmpeg output, which is where
// the actual error lands.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}

func formatSeconds(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}
