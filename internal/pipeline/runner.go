package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridshorts/pipeline/internal/asset"
	"github.com/gridshorts/pipeline/internal/logging"
	"github.com/gridshorts/pipeline/internal/model"
)

// Runner drives a whole batch: allocates identifiers up front, assigns
// difficulties in input order, fans items out to the orchestrator and
// assembles the batch report in input order regardless of completion
// order.
type Runner struct {
	orch     *Orchestrator
	store    *asset.Store
	cycler   *DifficultyCycler
	log      *logging.Logger
	parallel int
}

func NewRunner(orch *Orchestrator, store *asset.Store, cycler *DifficultyCycler, log *logging.Logger, parallel int) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{orch: orch, store: store, cycler: cycler, log: log, parallel: parallel}
}

// Run processes count items. A non-nil error means the batch could not
// start at all (identifier allocation failed); once items are running,
// failures land in the report instead.
func (r *Runner) Run(ctx context.Context, count int) (*model.BatchReport, error) {
	indexes, err := r.store.AllocateIndexes(count)
	if err != nil {
		return nil, err
	}

	// Difficulties are assigned in input order before any item runs, so
	// the sequence is identical whether the batch is sequential or
	// parallel.
	difficulties := make([]int, count)
	for i := range difficulties {
		difficulties[i] = r.cycler.Next()
	}

	report := &model.BatchReport{
		RunID:     uuid.NewString(),
		Items:     make([]model.ItemReport, count),
		StartedAt: time.Now().UTC(),
	}
	r.log.Info("batch %s: %d item(s) starting at %s, parallelism %d",
		report.RunID, count, asset.ItemID(indexes[0]), r.parallel)

	if r.parallel == 1 {
		r.runSequential(ctx, report, indexes, difficulties)
	} else {
		r.runParallel(ctx, report, indexes, difficulties)
	}

	report.FinishedAt = time.Now().UTC()
	report.Finalize()
	r.log.Info("batch %s: done — %d completed, %d partial, %d failed, %d skipped",
		report.RunID, report.Completed, report.Partial, report.Failed, report.Skipped)
	return report, nil
}

func (r *Runner) runSequential(ctx context.Context, report *model.BatchReport, indexes, difficulties []int) {
	for i := range indexes {
		if ctx.Err() != nil {
			report.Items[i] = skippedItem(indexes[i], difficulties[i])
			continue
		}
		report.Items[i] = r.orch.Process(ctx, indexes[i], difficulties[i])
	}
}

func (r *Runner) runParallel(ctx context.Context, report *model.BatchReport, indexes, difficulties []int) {
	type task struct{ slot int }
	tasks := make(chan task)

	var wg sync.WaitGroup
	for w := 0; w < r.parallel; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				// Each worker writes only its own slot.
				if ctx.Err() != nil {
					report.Items[t.slot] = skippedItem(indexes[t.slot], difficulties[t.slot])
					continue
				}
				report.Items[t.slot] = r.orch.Process(ctx, indexes[t.slot], difficulties[t.slot])
			}
		}()
	}
	for i := range indexes {
		tasks <- task{slot: i}
	}
	close(tasks)
	wg.Wait()
}

// skippedItem is the record for an item the batch never started,
// usually because the run was canceled first.
func skippedItem(index, difficulty int) model.ItemReport {
	now := time.Now().UTC()
	return model.ItemReport{
		Index:      index,
		ID:         asset.ItemID(index),
		Difficulty: difficulty,
		Status:     model.ItemSkipped,
		StartedAt:  now,
		FinishedAt: now,
	}
}
