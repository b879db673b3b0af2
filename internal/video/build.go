package video

import (
	"context"

	"github.com/gridshorts/pipeline/internal/config"
	"github.com/gridshorts/pipeline/internal/model"
	"github.com/gridshorts/pipeline/internal/pipeline"
)

// Builder is the compose-then-encode front door used by the item
// pipeline: puzzle card in, finished mp4 out.
type Builder struct {
	composer *Composer
	encoder  *Encoder
}

func NewBuilder(cfg config.VideoConfig) *Builder {
	return &Builder{
		composer: NewComposer(cfg),
		encoder:  NewEncoder(cfg),
	}
}

// Build writes the slide frames for the puzzle into scratchDir and
// encodes them into outPath.
func (b *Builder) Build(ctx context.Context, p *model.Puzzle, puzzleImage []byte, scratchDir, outPath string) error {
	slides, err := b.composer.Compose(p, puzzleImage, scratchDir)
	if err != nil {
		return pipeline.Terminal("encode", err)
	}
	return b.encoder.Encode(ctx, slides, outPath)
}
