// MCP transport handler using the official MCP Go SDK.
// Exposes price reconciliation as MCP tools for agent callers.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"b2b-pricing/internal/model"
	"b2b-pricing/internal/spreadsheet"
)

// === MCP Tool Input/Output Types ===

// ReconcilePricesInput is the input schema for the reconcile_prices tool.
type ReconcilePricesInput struct {
	Rows  []model.DesiredRow `json:"rows" jsonschema:"desired prices, one entry per SKU"`
	Actor string             `json:"actor,omitempty" jsonschema:"who requested the change, recorded in logs"`
}

// PollBulkJobInput is the input schema for the poll_bulk_job tool.
type PollBulkJobInput struct {
	JobID string `json:"job_id" jsonschema:"bulk job id returned by reconcile_prices"`
}

// ExportPricesInput is the input schema for the export_prices tool.
type ExportPricesInput struct {
	Actor string `json:"actor,omitempty" jsonschema:"who requested the export, recorded in logs"`
}

// ExportPricesOutput carries an xlsx workbook of the catalog.
type ExportPricesOutput struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ContentBase64 string `json:"content_base64"`
	VariantCount  int    `json:"variant_count"`
}

// NewMCPServer creates an MCP server with pricing tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "b2b-pricing",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "B2B pricing - reconcile variant prices and plan-limited B2B prices. " +
				"Large batches run as background jobs; poll them until done.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name: "reconcile_prices",
		Description: "Apply desired price, compare-at price and B2B price per SKU. " +
			"Returns a report; when job_id is set, poll it with poll_bulk_job.",
	}, h.mcpReconcilePrices)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "poll_bulk_job",
		Description: "Check a background price update once. done=true means the report is final.",
	}, h.mcpPollBulkJob)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_prices",
		Description: "Export every variant's prices as a base64-encoded xlsx workbook.",
	}, h.mcpExportPrices)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpReconcilePrices(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ReconcilePricesInput,
) (*mcp.CallToolResult, *model.Report, error) {
	if len(input.Rows) == 0 {
		return nil, nil, fmt.Errorf("rows is required")
	}

	report, err := h.reconciler.Reconcile(ctx, h.shopContext(ctx, input.Actor), input.Rows)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	return nil, report, nil
}

func (h *Handler) mcpPollBulkJob(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PollBulkJobInput,
) (*mcp.CallToolResult, *model.PollResult, error) {
	if input.JobID == "" {
		return nil, nil, fmt.Errorf("job_id is required")
	}

	result, err := h.reconciler.PollJob(ctx, input.JobID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	return nil, result, nil
}

func (h *Handler) mcpExportPrices(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ExportPricesInput,
) (*mcp.CallToolResult, *ExportPricesOutput, error) {
	variants, err := h.reconciler.Export(ctx)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	var buf bytes.Buffer
	if err := spreadsheet.WriteExport(&buf, variants); err != nil {
		return nil, nil, h.mcpError(err)
	}

	h.logger.InfoContext(ctx, "exported prices over mcp",
		"variants", len(variants),
		"actor", h.shopContext(ctx, input.Actor).Actor,
	)

	return nil, &ExportPricesOutput{
		Filename:      ExportFilename,
		ContentType:   spreadsheet.ContentType,
		ContentBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		VariantCount:  len(variants),
	}, nil
}

// mcpError converts reconciler errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
