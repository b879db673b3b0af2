package model

import "time"

// Stage names one discrete step within an item's processing.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageRender   Stage = "render"
	StageEncode   Stage = "encode"
	StagePersist  Stage = "persist"
	StageUpload   Stage = "upload"
	StagePost     Stage = "post"
)

// OutcomeStatus is the tagged result kind of one stage.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// StageOutcome records what happened to one stage of one item. Outcomes
// are never dropped; every stage that was considered for an item appears
// in its report.
type StageOutcome struct {
	Stage     Stage         `json:"stage"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Succeeded reports whether the stage completed.
func (o StageOutcome) Succeeded() bool { return o.Status == OutcomeSucceeded }

// SkippedOutcome builds a skipped record for a stage that was not run.
func SkippedOutcome(stage Stage, reason string) StageOutcome {
	return StageOutcome{Stage: stage, Status: OutcomeSkipped, Reason: reason}
}

// ItemStatus is the final per-item status, a pure function of the stage
// outcomes: completed iff every required stage succeeded (posting and
// uploading are optional), partial iff the asset was persisted but an
// optional distribution stage failed, failed iff no usable asset exists.
type ItemStatus string

const (
	ItemCompleted ItemStatus = "completed"
	ItemPartial   ItemStatus = "partial"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// PublishInfo is what the posting collaborator returns for a published
// video.
type PublishInfo struct {
	PublishID string `json:"publish_id"`
	Status    string `json:"status"`
	Caption   string `json:"caption,omitempty"`
}

// ItemReport is the per-item record, owned exclusively by the
// orchestrator processing that item.
type ItemReport struct {
	Index      int        `json:"index"`
	ID         string     `json:"id"`
	Difficulty int        `json:"difficulty"`

	Outcomes []StageOutcome `json:"outcomes"`
	Status   ItemStatus     `json:"status"`

	ImagePath    string       `json:"image_path,omitempty"`
	VideoPath    string       `json:"video_path,omitempty"`
	MetadataPath string       `json:"metadata_path,omitempty"`
	RemoteFileID string       `json:"remote_file_id,omitempty"`
	Publish      *PublishInfo `json:"publish,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Record appends a stage outcome.
func (r *ItemReport) Record(o StageOutcome) {
	r.Outcomes = append(r.Outcomes, o)
}

// Outcome returns the recorded outcome for a stage, or nil.
func (r *ItemReport) Outcome(stage Stage) *StageOutcome {
	for i := range r.Outcomes {
		if r.Outcomes[i].Stage == stage {
			return &r.Outcomes[i]
		}
	}
	return nil
}

// BatchReport aggregates item reports in input (identifier) order,
// regardless of completion order.
type BatchReport struct {
	RunID      string       `json:"run_id"`
	Items      []ItemReport `json:"items"`
	Completed  int          `json:"completed"`
	Partial    int          `json:"partial"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Finalize recomputes the aggregate counters from the item reports.
func (b *BatchReport) Finalize() {
	b.Completed, b.Partial, b.Failed, b.Skipped = 0, 0, 0, 0
	for _, it := range b.Items {
		switch it.Status {
		case ItemCompleted:
			b.Completed++
		case ItemPartial:
			b.Partial++
		case ItemFailed:
			b.Failed++
		case ItemSkipped:
			b.Skipped++
		}
	}
}

// Produced reports whether the batch produced at least one usable asset.
func (b *BatchReport) Produced() bool {
	return b.Completed > 0 || b.Partial > 0
}
