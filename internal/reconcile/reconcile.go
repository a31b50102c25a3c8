// Package reconcile turns a batch of desired prices into platform mutations.
// It loads a live snapshot, classifies each row against it, applies the plan
// limit, and executes either point mutations or one bulk job, producing a report.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"b2b-pricing/internal/adapter"
	"b2b-pricing/internal/admission"
	"b2b-pricing/internal/bulk"
	"b2b-pricing/internal/model"
)

// DefaultBulkThreshold is the largest batch sent as point mutations.
const DefaultBulkThreshold = 25

// ReportStore keeps the optimistic report of a bulk run until its job is polled.
type ReportStore interface {
	SaveReport(ctx context.Context, jobID string, report *model.Report) error
	// LoadReport returns an error wrapping model.ErrNotFound for unknown jobs.
	LoadReport(ctx context.Context, jobID string) (*model.Report, error)
}

// Options configures a Reconciler.
type Options struct {
	Field         model.SpecialPriceField
	BulkThreshold int // admitted operations above this go through a bulk job
}

// Reconciler runs reconciliations against one shop.
type Reconciler struct {
	gateway   adapter.Gateway
	driver    *bulk.Driver
	store     ReportStore
	field     model.SpecialPriceField
	threshold int
	logger    *slog.Logger
}

// New creates a Reconciler. store may be nil, in which case polls of bulk jobs
// report only the platform's row errors.
func New(gateway adapter.Gateway, store ReportStore, opts Options, logger *slog.Logger) *Reconciler {
	if opts.Field == (model.SpecialPriceField{}) {
		opts.Field = model.DefaultSpecialPriceField
	}
	if opts.BulkThreshold <= 0 {
		opts.BulkThreshold = DefaultBulkThreshold
	}
	return &Reconciler{
		gateway:   gateway,
		driver:    bulk.NewDriver(gateway, opts.Field, logger),
		store:     store,
		field:     opts.Field,
		threshold: opts.BulkThreshold,
		logger:    logger,
	}
}

// Reconcile applies rows to the shop's catalog.
//
// Flow:
//  1. Load the full snapshot and resolve the plan capacity. Failure aborts before any write.
//  2. Classify every row; failures and no-ops go straight to the report.
//  3. Admit operations against the plan limit.
//  4. Execute: point mutations for small batches, one bulk job otherwise.
//
// Row-level problems never abort the run. The returned error is non-nil only
// when nothing was attempted.
func (r *Reconciler) Reconcile(ctx context.Context, shop model.ShopContext, rows []model.DesiredRow) (*model.Report, error) {
	report := model.NewReport(len(rows))
	report.RunID = uuid.NewString()
	log := r.logger.With("run_id", report.RunID, "shop", shop.Shop)
	if shop.Actor != "" {
		log = log.With("actor", shop.Actor)
	}

	snapshot, err := LoadSnapshot(ctx, r.gateway)
	if err != nil {
		log.Error("snapshot load failed", "error", err)
		return nil, model.NewSnapshotError(err)
	}

	plan, err := r.gateway.ActivePlanName(ctx)
	if err != nil {
		log.Error("plan lookup failed", "error", err)
		return nil, model.NewUpstreamError("subscription", err)
	}
	capacity := admission.CapacityForPlan(plan)

	classifier := NewClassifier(snapshot)
	var ops []model.ClassifiedOperation
	for _, row := range rows {
		c := classifier.Classify(row)
		switch c.Outcome {
		case OutcomeFailed:
			report.FailedRows = append(report.FailedRows, outcome(row, c.VariantID, c.Reason))
			report.Errors = append(report.Errors, rowError(row, c.Reason))
		case OutcomeUnchanged:
			report.SkippedRows = append(report.SkippedRows, outcome(row, c.VariantID, c.Reason))
		case OutcomeChanged:
			ops = append(ops, *c.Operation)
		}
	}

	decision := admission.Admit(ops, snapshot.SpecialPriceCount(), capacity)
	for _, op := range decision.Deferred {
		report.LimitSkippedCount++
		report.Deferred = append(report.Deferred, model.DeferredOperation{
			Line:      op.Row.Line,
			SKU:       op.Row.SKU,
			VariantID: op.VariantID,
			Reason:    admission.ReasonPlanLimit,
		})
		report.FailedRows = append(report.FailedRows, outcome(op.Row, op.VariantID, admission.ReasonPlanLimit))
		report.Errors = append(report.Errors, rowError(op.Row, admission.ReasonPlanLimit))
	}

	log.Info("batch classified",
		"rows", len(rows),
		"variants", snapshot.Len(),
		"plan", plan,
		"capacity", capacity.String(),
		"special_prices", snapshot.SpecialPriceCount(),
		"admitted", len(decision.Admitted),
		"deferred", len(decision.Deferred),
	)

	if len(decision.Admitted) == 0 {
		return report, nil
	}

	batches := bulk.GroupByProduct(decision.Admitted)
	if len(decision.Admitted) <= r.threshold {
		r.executePoint(ctx, log, batches, report)
		return report, nil
	}
	r.executeBulk(ctx, log, batches, len(decision.Admitted), report)
	return report, nil
}

// executePoint sends one mutation per product and records confirmed results.
func (r *Reconciler) executePoint(ctx context.Context, log *slog.Logger, batches []bulk.ProductBatch, report *model.Report) {
	for _, batch := range batches {
		update := batch.Update(r.field)
		userErrors, err := r.gateway.UpdateVariants(ctx, batch.ProductID, update.Variants)
		if err != nil {
			log.Warn("variant update failed", "product_id", batch.ProductID, "error", err)
			for _, op := range batch.Operations {
				r.recordFailure(report, op, "update failed: "+err.Error())
			}
			continue
		}

		failed := assignUserErrors(userErrors, len(batch.Operations))
		for i, op := range batch.Operations {
			if msg, ok := failed[i]; ok {
				r.recordFailure(report, op, msg)
				continue
			}
			recordUpdate(report, op)
		}
	}
}

// executeBulk submits one job and records every admitted operation optimistically.
// The report is stored so that PollJob can merge the platform's row errors into it.
func (r *Reconciler) executeBulk(ctx context.Context, log *slog.Logger, batches []bulk.ProductBatch, admitted int, report *model.Report) {
	job, err := r.driver.Submit(ctx, batches)
	if err != nil {
		log.Error("bulk submission failed", "error", err)
		report.Errors = append(report.Errors, "bulk update failed: "+err.Error())
		for _, b := range batches {
			for _, op := range b.Operations {
				report.FailedRows = append(report.FailedRows, outcome(op.Row, op.VariantID, "bulk submission failed"))
			}
		}
		return
	}

	for _, b := range batches {
		for _, op := range b.Operations {
			recordUpdate(report, op)
		}
	}
	report.JobID = job.ID
	report.ExpectedUpdateCount = admitted

	if r.store == nil {
		return
	}
	if err := r.store.SaveReport(ctx, job.ID, report); err != nil {
		log.Warn("storing pending report failed", "job_id", job.ID, "error", err)
	}
}

// PollJob checks a bulk job once. A completed job's row errors are merged into
// the report stored at submission. Errors returned are transient.
func (r *Reconciler) PollJob(ctx context.Context, jobID string) (*model.PollResult, error) {
	if jobID == "" {
		return nil, model.NewValidationError("job_id", "required")
	}

	out, err := r.driver.Poll(ctx, jobID)
	if err != nil {
		r.logger.Warn("bulk poll failed", "job_id", jobID, "error", err)
		return nil, model.NewUpstreamError("bulk job", err)
	}

	result := &model.PollResult{
		JobID:       jobID,
		Status:      out.Job.Status,
		ObjectCount: out.Job.ObjectCount,
	}
	if out.Job.Status.InProgress() {
		return result, nil
	}

	result.Done = true
	result.Report = r.pendingReport(ctx, jobID)

	if out.Job.Status != model.BulkJobCompleted {
		result.Error = "background update failed"
		msg := fmt.Sprintf("background update failed with status %s", out.Job.Status)
		if out.Job.ErrorCode != "" {
			msg += " (" + out.Job.ErrorCode + ")"
		}
		result.Report.Errors = append(result.Report.Errors, msg)
		r.logger.Warn("bulk job did not complete", "job_id", jobID, "status", out.Job.Status, "error_code", out.Job.ErrorCode)
		return result, nil
	}

	result.Report.Errors = append(result.Report.Errors, out.RowErrors...)
	r.logger.Info("bulk job completed", "job_id", jobID, "objects", out.Job.ObjectCount, "row_errors", len(out.RowErrors))
	return result, nil
}

// Export returns every variant of the catalog, for a price export.
func (r *Reconciler) Export(ctx context.Context) ([]model.VariantSnapshot, error) {
	snapshot, err := LoadSnapshot(ctx, r.gateway)
	if err != nil {
		r.logger.Error("snapshot load failed", "error", err)
		return nil, model.NewSnapshotError(err)
	}
	return snapshot.Variants(), nil
}

// pendingReport loads the stored report for jobID, or starts an empty one.
func (r *Reconciler) pendingReport(ctx context.Context, jobID string) *model.Report {
	if r.store != nil {
		stored, err := r.store.LoadReport(ctx, jobID)
		if err == nil {
			return stored
		}
		if !errors.Is(err, model.ErrNotFound) {
			r.logger.Warn("loading pending report failed", "job_id", jobID, "error", err)
		}
	}
	report := model.NewReport(0)
	report.JobID = jobID
	return report
}

func (r *Reconciler) recordFailure(report *model.Report, op model.ClassifiedOperation, reason string) {
	report.FailedRows = append(report.FailedRows, outcome(op.Row, op.VariantID, reason))
	report.Errors = append(report.Errors, rowError(op.Row, reason))
}

// recordUpdate counts an operation as updated. Per-field counters count intent.
func recordUpdate(report *model.Report, op model.ClassifiedOperation) {
	report.Updated++
	if op.PriceChanged {
		report.UpdatedPrice++
	}
	if op.CompareAtChanged {
		report.UpdatedCompareAt++
	}
	if op.SpecialPriceChanged {
		report.UpdatedSpecial++
	}
	report.UpdatedRows = append(report.UpdatedRows, outcome(op.Row, op.VariantID, updatedFields(op)))
}

// updatedFields lists what changed, e.g. "Updated: Price, B2B Price".
func updatedFields(op model.ClassifiedOperation) string {
	fields := ""
	add := func(name string) {
		if fields != "" {
			fields += ", "
		}
		fields += name
	}
	if op.PriceChanged {
		add("Price")
	}
	if op.CompareAtChanged {
		add("CompareAt Price")
	}
	if op.SpecialPriceChanged {
		add("B2B Price")
	}
	return "Updated: " + fields
}

// assignUserErrors maps user errors to variant positions within one product call.
// Errors whose field path does not name a variant fail the whole product.
func assignUserErrors(userErrors []model.UserError, n int) map[int]string {
	failed := make(map[int]string)
	for _, ue := range userErrors {
		if i, ok := variantIndex(ue.Field); ok && i < n {
			if _, seen := failed[i]; !seen {
				failed[i] = ue.Message
			}
			continue
		}
		for i := 0; i < n; i++ {
			if _, seen := failed[i]; !seen {
				failed[i] = ue.Message
			}
		}
	}
	return failed
}

// variantIndex reads the position from a field path like ["variants", "2", "price"].
func variantIndex(field []string) (int, bool) {
	if len(field) < 2 || field[0] != "variants" {
		return 0, false
	}
	i, err := strconv.Atoi(field[1])
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func outcome(row model.DesiredRow, variantID, reason string) model.RowOutcome {
	return model.RowOutcome{
		Line:      row.Line,
		SKU:       row.SKU,
		VariantID: variantID,
		Reason:    reason,
		Source:    row.Source,
	}
}

func rowError(row model.DesiredRow, reason string) string {
	if row.Line > 0 {
		return fmt.Sprintf("row %d, SKU %s: %s", row.Line, row.SKU, reason)
	}
	return fmt.Sprintf("SKU %s: %s", row.SKU, reason)
}
