package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gridshorts/pipeline/internal/asset"
	"github.com/gridshorts/pipeline/internal/logging"
	"github.com/gridshorts/pipeline/internal/model"
)

// Collaborator interfaces. The orchestrator owns these so the concrete
// clients stay swappable in tests and optional at runtime.

// Generator produces a validated puzzle for the given identity.
type Generator interface {
	Generate(ctx context.Context, id string, index, difficulty int) (*model.Puzzle, error)
}

// Renderer turns a puzzle into a PNG card.
type Renderer interface {
	Render(p *model.Puzzle) ([]byte, error)
}

// VideoBuilder assembles the slide video for a puzzle into outPath.
type VideoBuilder interface {
	Build(ctx context.Context, p *model.Puzzle, puzzleImage []byte, scratchDir, outPath string) error
}

// Uploader stores a file remotely and returns its remote identifier.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (string, error)
	IsConfigured() bool
}

// Poster publishes a video and returns the publish record.
type Poster interface {
	PostVideo(ctx context.Context, videoPath, caption, privacyLevel string) (*model.PublishInfo, error)
	IsConfigured() bool
}

// Options selects the optional tail of the per-item pipeline.
type Options struct {
	SkipVideo bool
	Upload    bool
	Post      bool

	PrivacyLevel  string
	VideoDuration float64
	StageTimeout  time.Duration
}

// Orchestrator runs the per-item state machine: generate, render,
// encode, persist, then the optional upload and post stages. One
// orchestrator is shared across items; all per-item state lives in the
// ItemReport it returns.
type Orchestrator struct {
	gen      Generator
	renderer Renderer
	video    VideoBuilder
	store    *asset.Store
	uploader Uploader
	poster   Poster
	limiter  Limiter
	exec     *Executor
	log      *logging.Logger
	opts     Options
}

func NewOrchestrator(
	gen Generator,
	renderer Renderer,
	video VideoBuilder,
	store *asset.Store,
	uploader Uploader,
	poster Poster,
	limiter Limiter,
	exec *Executor,
	log *logging.Logger,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		gen:      gen,
		renderer: renderer,
		video:    video,
		store:    store,
		uploader: uploader,
		poster:   poster,
		limiter:  limiter,
		exec:     exec,
		log:      log,
		opts:     opts,
	}
}

// withTimeout bounds one stage attempt so a hung external call cannot
// stall the batch.
func (o *Orchestrator) withTimeout(fn func(ctx context.Context) error) func(ctx context.Context) error {
	if o.opts.StageTimeout <= 0 {
		return fn
	}
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
		defer cancel()
		return fn(ctx)
	}
}

// Process runs every stage for one item and returns its report. It
// never returns an error: any failure is captured in the report so one
// bad item cannot take down the batch.
func (o *Orchestrator) Process(ctx context.Context, index, difficulty int) (report model.ItemReport) {
	id := asset.ItemID(index)
	report = model.ItemReport{
		Index:      index,
		ID:         id,
		Difficulty: difficulty,
		StartedAt:  time.Now().UTC(),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	o.log.Info("item %s: starting (difficulty %d)", id, difficulty)

	scratch, err := os.MkdirTemp("", id+"-")
	if err != nil {
		report.Record(model.StageOutcome{
			Stage:  model.StageGenerate,
			Status: model.OutcomeFailed,
			Reason: fmt.Sprintf("create scratch dir: %v", err),
		})
		o.skipRemaining(&report, model.StageRender, "previous stage failed")
		report.Status = model.ItemFailed
		return report
	}
	defer os.RemoveAll(scratch)

	// Generate.
	var puzzle *model.Puzzle
	out := o.exec.Run(ctx, model.StageGenerate, o.withTimeout(func(ctx context.Context) error {
		p, err := o.gen.Generate(ctx, id, index, difficulty)
		if err != nil {
			return err
		}
		puzzle = p
		return nil
	}))
	report.Record(out)
	if !out.Succeeded() {
		o.skipRemaining(&report, model.StageRender, "previous stage failed")
		report.Status = model.ItemFailed
		return report
	}

	// Render.
	var card []byte
	out = o.exec.Run(ctx, model.StageRender, func(ctx context.Context) error {
		b, err := o.renderer.Render(puzzle)
		if err != nil {
			return Terminal("render", err)
		}
		card = b
		return nil
	})
	report.Record(out)
	if !out.Succeeded() {
		o.skipRemaining(&report, model.StageEncode, "previous stage failed")
		report.Status = model.ItemFailed
		return report
	}

	// Encode.
	stagedVideo := filepath.Join(scratch, id+".mp4")
	haveVideo := false
	if o.opts.SkipVideo {
		report.Record(model.SkippedOutcome(model.StageEncode, "video generation disabled"))
	} else {
		out = o.exec.Run(ctx, model.StageEncode, o.withTimeout(func(ctx context.Context) error {
			return o.video.Build(ctx, puzzle, card, scratch, stagedVideo)
		}))
		report.Record(out)
		if !out.Succeeded() {
			o.skipRemaining(&report, model.StagePersist, "previous stage failed")
			report.Status = model.ItemFailed
			return report
		}
		haveVideo = true
	}

	// Persist.
	out = o.exec.Run(ctx, model.StagePersist, func(ctx context.Context) error {
		imgPath, err := o.store.CommitImage(id, card)
		if err != nil {
			return Filesystem("persist", err)
		}
		report.ImagePath = imgPath

		if haveVideo {
			vidPath, err := o.store.CommitVideo(id, stagedVideo)
			if err != nil {
				return Filesystem("persist", err)
			}
			report.VideoPath = vidPath
		}

		meta := &asset.Metadata{
			PuzzleID:   id,
			Puzzle:     *puzzle,
			CreatedAt:  time.Now().UTC(),
			Difficulty: puzzle.Difficulty,
			ImagePath:  report.ImagePath,
			VideoPath:  report.VideoPath,
		}
		if haveVideo {
			meta.VideoDuration = o.opts.VideoDuration
		}
		metaPath, err := o.store.CommitMetadata(id, meta)
		if err != nil {
			return Filesystem("persist", err)
		}
		report.MetadataPath = metaPath
		return nil
	})
	report.Record(out)
	if !out.Succeeded() {
		o.skipRemaining(&report, model.StageUpload, "previous stage failed")
		report.Status = model.ItemFailed
		return report
	}

	// Optional distribution stages. Failures here downgrade the item to
	// partial; the local asset is already committed.
	degraded := false

	if !o.opts.Upload || o.uploader == nil {
		report.Record(model.SkippedOutcome(model.StageUpload, "upload disabled"))
	} else if !haveVideo {
		report.Record(model.SkippedOutcome(model.StageUpload, "no video to upload"))
	} else {
		out = o.exec.Run(ctx, model.StageUpload, o.withTimeout(func(ctx context.Context) error {
			remoteID, err := o.uploader.UploadFile(ctx, report.VideoPath)
			if err != nil {
				return err
			}
			report.RemoteFileID = remoteID
			return nil
		}))
		report.Record(out)
		if out.Succeeded() {
			o.noteMetadata(id, func(m *asset.Metadata) { m.RemoteFileID = report.RemoteFileID })
		} else {
			degraded = true
		}
	}

	if !o.opts.Post || o.poster == nil {
		report.Record(model.SkippedOutcome(model.StagePost, "posting disabled"))
	} else if !haveVideo {
		report.Record(model.SkippedOutcome(model.StagePost, "no video to post"))
	} else {
		caption := buildCaption(puzzle)
		out = o.exec.Run(ctx, model.StagePost, o.withTimeout(func(ctx context.Context) error {
			if o.limiter != nil {
				if err := o.limiter.Acquire(ctx); err != nil {
					return Transient("post", fmt.Errorf("rate limiter: %w", err))
				}
			}
			info, err := o.poster.PostVideo(ctx, report.VideoPath, caption, o.opts.PrivacyLevel)
			if err != nil {
				return err
			}
			report.Publish = info
			return nil
		}))
		report.Record(out)
		if out.Succeeded() {
			o.noteMetadata(id, func(m *asset.Metadata) {
				m.PublishID = report.Publish.PublishID
				m.PublishStatus = report.Publish.Status
				m.Caption = report.Publish.Caption
			})
		} else {
			degraded = true
		}
	}

	if degraded {
		report.Status = model.ItemPartial
	} else {
		report.Status = model.ItemCompleted
	}
	o.log.Info("item %s: %s", id, report.Status)
	return report
}

// skipRemaining records skipped outcomes for every stage from first
// onward, in pipeline order.
func (o *Orchestrator) skipRemaining(report *model.ItemReport, first model.Stage, reason string) {
	order := []model.Stage{
		model.StageGenerate, model.StageRender, model.StageEncode,
		model.StagePersist, model.StageUpload, model.StagePost,
	}
	skipping := false
	for _, s := range order {
		if s == first {
			skipping = true
		}
		if skipping {
			report.Record(model.SkippedOutcome(s, reason))
		}
	}
}

// noteMetadata applies a best-effort metadata update; a failed update is
// logged but never changes the item outcome.
func (o *Orchestrator) noteMetadata(id string, mutate func(*asset.Metadata)) {
	if err := o.store.UpdateMetadata(id, mutate); err != nil {
		o.log.Warn("item %s: metadata update failed: %v", id, err)
	}
}

func buildCaption(p *model.Puzzle) string {
	return fmt.Sprintf("%s #puzzle #iqtest #brainteaser #matrixreasoning", p.QuestionText)
}
