package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"b2b-pricing/internal/model"
	"b2b-pricing/internal/spreadsheet"
)

// ExportFilename is the attachment name of a price export.
const ExportFilename = "product-prices.xlsx"

// ReconcileRequest is the body of POST /prices/reconcile.
type ReconcileRequest struct {
	Rows []model.DesiredRow `json:"rows"`
}

// ImportResponse is returned by POST /prices/import. Headers is the uploaded
// sheet's header row, so outcome tables can be rendered in the same columns.
type ImportResponse struct {
	Headers []string      `json:"headers"`
	Report  *model.Report `json:"report"`
}

// handleReconcile applies a batch of desired rows.
// POST /prices/reconcile
func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if len(req.Rows) == 0 {
		h.writeError(w, model.NewValidationError("rows", "at least one row is required"))
		return
	}

	sc := h.shopContext(ctx, "")
	h.logger.InfoContext(ctx, "reconciling prices",
		slog.Int("rows", len(req.Rows)),
		slog.String("actor", sc.Actor),
	)

	report, err := h.reconciler.Reconcile(ctx, sc, req.Rows)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, reportStatus(report), report)
}

// handleImport reconciles an uploaded xlsx sheet.
// POST /prices/import (multipart form, field "file")
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, model.NewValidationError("file", "upload too large"))
			return
		}
		h.writeError(w, model.NewValidationError("file", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	sheet, err := spreadsheet.ReadRows(file)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(sheet.Rows) == 0 {
		h.writeError(w, model.NewValidationError("file", "no rows with a SKU"))
		return
	}

	sc := h.shopContext(ctx, "")
	h.logger.InfoContext(ctx, "importing price sheet",
		slog.String("filename", header.Filename),
		slog.Int("rows", len(sheet.Rows)),
		slog.String("actor", sc.Actor),
	)

	report, err := h.reconciler.Reconcile(ctx, sc, sheet.Rows)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, reportStatus(report), ImportResponse{Headers: sheet.Headers, Report: report})
}

// handleExport streams the catalog as an xlsx workbook.
// GET /prices/export
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	variants, err := h.reconciler.Export(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteExport(&buf, variants); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "exported prices", slog.Int("variants", len(variants)))

	w.Header().Set("Content-Type", spreadsheet.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Error("failed to write export", slog.String("error", err.Error()))
	}
}

// handlePollJob polls one bulk job.
// GET /bulk-jobs?id={job id}
func (h *Handler) handlePollJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := r.URL.Query().Get("id")

	result, err := h.reconciler.PollJob(ctx, jobID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// reportStatus is 202 while a bulk job is still applying the report's updates.
func reportStatus(report *model.Report) int {
	if report.JobID != "" {
		return http.StatusAccepted
	}
	return http.StatusOK
}
