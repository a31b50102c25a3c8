package bulk

import (
	"context"
	"fmt"
	"log/slog"

	"b2b-pricing/internal/adapter"
	"b2b-pricing/internal/model"
)

const (
	mutationName = "productVariantsBulkUpdate"

	// VariantsBulkUpdateMutation is run once per payload line.
	VariantsBulkUpdateMutation = `mutation call($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    productVariants { id }
    userErrors { field message }
  }
}`

	// PayloadFilename is the name the variables file is staged under.
	PayloadFilename = "price_updates.jsonl"
)

// Driver submits and tracks bulk mutation jobs.
type Driver struct {
	runner adapter.BulkRunner
	field  model.SpecialPriceField
	logger *slog.Logger
}

// NewDriver creates a driver that writes special prices to field.
func NewDriver(runner adapter.BulkRunner, field model.SpecialPriceField, logger *slog.Logger) *Driver {
	return &Driver{runner: runner, field: field, logger: logger}
}

// Submit uploads the batches and starts one bulk job.
// A failure before the job is accepted returns a staging error and nothing has run.
func (d *Driver) Submit(ctx context.Context, batches []ProductBatch) (*model.BulkJob, error) {
	payload := NewPayload(d.field).AddBatches(batches)
	if !payload.HasLines() {
		return nil, model.NewValidationError("batches", "no operations to submit")
	}
	data, err := payload.Build()
	if err != nil {
		return nil, model.NewInternalError(err)
	}

	d.cancelRunningJob(ctx)

	target, err := d.runner.StageUpload(ctx, PayloadFilename)
	if err != nil {
		return nil, model.NewStagingError("stage", err)
	}
	stagedPath := target.Path()
	if stagedPath == "" {
		return nil, model.NewStagingError("stage", fmt.Errorf("staged target has no key parameter"))
	}

	if err := d.runner.Upload(ctx, target, PayloadFilename, data); err != nil {
		return nil, model.NewStagingError("upload", err)
	}

	job, err := d.runner.RunBulkMutation(ctx, VariantsBulkUpdateMutation, stagedPath)
	if err != nil {
		return nil, model.NewStagingError("submit", err)
	}

	d.logger.Info("bulk job submitted",
		"job_id", job.ID,
		"status", job.Status,
		"lines", payload.LineCount(),
		"bytes", len(data),
	)
	return job, nil
}

// cancelRunningJob cancels the shop's current bulk mutation if it is still active.
// The platform allows one bulk mutation at a time. Any failure here is logged and
// submission proceeds; the platform rejects the new job if the old one is still running.
func (d *Driver) cancelRunningJob(ctx context.Context) {
	current, err := d.runner.CurrentBulkJob(ctx)
	if err != nil {
		d.logger.Warn("checking current bulk job failed", "error", err)
		return
	}
	if current == nil || !current.Status.InProgress() {
		return
	}

	if err := d.runner.CancelBulkJob(ctx, current.ID); err != nil {
		d.logger.Warn("canceling running bulk job failed", "job_id", current.ID, "error", err)
		return
	}
	d.logger.Info("canceled running bulk job", "job_id", current.ID)
}

// PollOutcome is the driver's view of one poll.
type PollOutcome struct {
	Job *model.BulkJob
	// RowErrors holds the first user error of each failed result line.
	// Only populated once the job has COMPLETED.
	RowErrors []string
}

// Poll checks a job once. Completed jobs have their result file downloaded and parsed.
// Errors are transient: the caller polls again on its next interval.
func (d *Driver) Poll(ctx context.Context, jobID string) (*PollOutcome, error) {
	job, err := d.runner.GetBulkJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("getting bulk job %s: %w", jobID, err)
	}

	out := &PollOutcome{Job: job}
	if job.Status != model.BulkJobCompleted || job.URL == "" {
		// A completed job with no URL produced no output lines.
		return out, nil
	}

	body, err := d.runner.FetchResult(ctx, job.URL)
	if err != nil {
		return nil, fmt.Errorf("downloading bulk results: %w", err)
	}
	defer body.Close()

	out.RowErrors, err = ParseResults(body)
	if err != nil {
		return nil, err
	}
	return out, nil
}
