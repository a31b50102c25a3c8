// Package model defines data structures shared by the reconciliation engine and platform clients.
package model

import (
	"encoding/json"
	"time"
)

// === Catalog ===

// VariantSnapshot is the live state of one product variant as read from the platform.
// A snapshot is read once per run and never written back or cached.
type VariantSnapshot struct {
	ID                 string    `json:"id"`
	SKU                string    `json:"sku"`
	ProductID          string    `json:"product_id"`
	Price              float64   `json:"price"`
	CompareAtPrice     *float64  `json:"compare_at_price,omitempty"`
	SpecialPrice       *float64  `json:"special_price,omitempty"`
	SpecialPriceHandle string    `json:"special_price_handle,omitempty"` // metafield id, when one exists
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasSpecialPrice reports whether the variant occupies a plan slot.
// A missing value and a value <= 0 are both "not set".
func (v *VariantSnapshot) HasSpecialPrice() bool {
	return v.SpecialPrice != nil && *v.SpecialPrice > 0
}

// VariantPage is one cursor page of variants.
type VariantPage struct {
	Variants    []VariantSnapshot
	HasNextPage bool
	EndCursor   string
}

// SpecialPriceField identifies the metafield that stores the B2B price.
type SpecialPriceField struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
}

// DefaultSpecialPriceField is the app-owned metafield used when none is configured.
var DefaultSpecialPriceField = SpecialPriceField{
	Namespace: "$app",
	Key:       "gd_b2b_price",
	Type:      "number_decimal",
}

// === Desired state ===

// DesiredRow is one requested change, from an interactive edit or a spreadsheet line.
// Nil pointer fields carry no intent. Price fields are raw strings so that
// validation failures can be reported against the value the user typed.
type DesiredRow struct {
	Line           int               `json:"line,omitempty"` // 1-based source line, 0 when not from a file
	SKU            string            `json:"sku"`
	Price          *string           `json:"price,omitempty"`
	CompareAtPrice *string           `json:"compare_at_price,omitempty"` // "null" clears
	SpecialPrice   *string           `json:"special_price,omitempty"`    // "" or "null" clears
	SubmittedAt    int64             `json:"submitted_at,omitempty"`     // admission priority, 0 when unknown
	Source         map[string]string `json:"source,omitempty"`           // original cells keyed by header
}

// === Classification ===

// SpecialPriceOp says how a change moves a variant in or out of the plan-limited set.
type SpecialPriceOp string

const (
	SpecialPriceNone         SpecialPriceOp = "none"
	SpecialPriceAddition     SpecialPriceOp = "addition"
	SpecialPriceModification SpecialPriceOp = "modification"
	SpecialPriceDeletion     SpecialPriceOp = "deletion"
)

// ClassifiedOperation is a row that resolved to a real change against one variant.
type ClassifiedOperation struct {
	Row       DesiredRow `json:"row"`
	VariantID string     `json:"variant_id"`
	ProductID string     `json:"product_id"`

	PriceChanged bool    `json:"price_changed"`
	NewPrice     float64 `json:"new_price,omitempty"`

	CompareAtChanged bool     `json:"compare_at_changed"`
	NewCompareAt     *float64 `json:"new_compare_at,omitempty"` // nil with CompareAtChanged means clear

	SpecialPriceChanged bool           `json:"special_price_changed"`
	SpecialPriceOp      SpecialPriceOp `json:"special_price_op"`
	NewSpecialPrice     float64        `json:"new_special_price,omitempty"` // 0 when clearing
	SpecialPriceHandle  string         `json:"special_price_handle,omitempty"`
}

// Update converts the operation into platform mutation input.
// Existing metafields are addressed by id, new ones by namespace and key.
func (op *ClassifiedOperation) Update(field SpecialPriceField) VariantUpdate {
	u := VariantUpdate{ID: op.VariantID}
	if op.PriceChanged {
		p := FormatDecimal(op.NewPrice)
		u.Price = &p
	}
	if op.CompareAtChanged {
		if op.NewCompareAt == nil {
			u.ClearCompareAt = true
		} else {
			c := FormatDecimal(*op.NewCompareAt)
			u.CompareAtPrice = &c
		}
	}
	if op.SpecialPriceChanged {
		mf := &MetafieldInput{Value: FormatDecimal(op.NewSpecialPrice), Type: field.Type}
		if op.SpecialPriceHandle != "" {
			mf.ID = op.SpecialPriceHandle
		} else {
			mf.Namespace = field.Namespace
			mf.Key = field.Key
		}
		u.Metafield = mf
	}
	return u
}

// === Mutation input ===

// MetafieldInput is a metafield write inside a variant update.
type MetafieldInput struct {
	ID        string `json:"id,omitempty"`
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key,omitempty"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// VariantUpdate is one variant inside a productVariantsBulkUpdate call.
type VariantUpdate struct {
	ID             string
	Price          *string
	CompareAtPrice *string
	ClearCompareAt bool // sends an explicit null
	Metafield      *MetafieldInput
}

// MarshalJSON emits ProductVariantsBulkInput, with compareAtPrice null when clearing.
func (u VariantUpdate) MarshalJSON() ([]byte, error) {
	out := map[string]any{"id": u.ID}
	if u.Price != nil {
		out["price"] = *u.Price
	}
	if u.ClearCompareAt {
		out["compareAtPrice"] = nil
	} else if u.CompareAtPrice != nil {
		out["compareAtPrice"] = *u.CompareAtPrice
	}
	if u.Metafield != nil {
		out["metafields"] = []*MetafieldInput{u.Metafield}
	}
	return json.Marshal(out)
}

// ProductUpdate groups the variant updates of one product, the unit of one mutation call.
type ProductUpdate struct {
	ProductID string          `json:"productId"`
	Variants  []VariantUpdate `json:"variants"`
}

// UserError is a validation message returned by a platform mutation.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
}

// === Bulk jobs ===

// BulkJobStatus mirrors the platform's BulkOperationStatus enum.
type BulkJobStatus string

const (
	BulkJobCreated   BulkJobStatus = "CREATED"
	BulkJobRunning   BulkJobStatus = "RUNNING"
	BulkJobCompleted BulkJobStatus = "COMPLETED"
	BulkJobCanceling BulkJobStatus = "CANCELING"
	BulkJobCanceled  BulkJobStatus = "CANCELED"
	BulkJobFailed    BulkJobStatus = "FAILED"
	BulkJobExpired   BulkJobStatus = "EXPIRED"
	BulkJobNone      BulkJobStatus = "NONE" // job id unknown to the platform
)

// InProgress reports whether the job may still change state.
func (s BulkJobStatus) InProgress() bool {
	return s == BulkJobCreated || s == BulkJobRunning
}

// BulkJob is the platform's view of a submitted bulk operation.
type BulkJob struct {
	ID          string        `json:"id"`
	Status      BulkJobStatus `json:"status"`
	ObjectCount int64         `json:"object_count"`
	URL         string        `json:"url,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
}

// StagedTarget is where a bulk payload must be uploaded.
type StagedTarget struct {
	URL         string            `json:"url"`
	ResourceURL string            `json:"resource_url,omitempty"`
	Parameters  []StagedParameter `json:"parameters"`
}

// StagedParameter is a form field that must precede the file in the upload.
type StagedParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Path returns the staged upload path passed to bulkOperationRunMutation.
func (t *StagedTarget) Path() string {
	for _, p := range t.Parameters {
		if p.Name == "key" {
			return p.Value
		}
	}
	return ""
}

// === Reports ===

// RowOutcome records what happened to one input row.
type RowOutcome struct {
	Line      int               `json:"line,omitempty"`
	SKU       string            `json:"sku"`
	VariantID string            `json:"variant_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Source    map[string]string `json:"source,omitempty"`
}

// DeferredOperation is an addition refused by the plan limit.
// Callers use VariantID to revert local edit state.
type DeferredOperation struct {
	Line      int    `json:"line,omitempty"`
	SKU       string `json:"sku"`
	VariantID string `json:"variant_id"`
	Reason    string `json:"reason"`
}

// Report summarises one reconciliation run.
// Per-field counters count changes that were sent, not changes the platform confirmed.
type Report struct {
	RunID               string              `json:"run_id"`
	Total               int                 `json:"total"`
	Updated             int                 `json:"updated"`
	UpdatedPrice        int                 `json:"updated_price"`
	UpdatedCompareAt    int                 `json:"updated_compare_at"`
	UpdatedSpecial      int                 `json:"updated_special"`
	Errors              []string            `json:"errors"`
	FailedRows          []RowOutcome        `json:"failed_rows"`
	SkippedRows         []RowOutcome        `json:"skipped_rows"`
	UpdatedRows         []RowOutcome        `json:"updated_rows"`
	LimitSkippedCount   int                 `json:"limit_skipped_count"`
	Deferred            []DeferredOperation `json:"deferred"`
	JobID               string              `json:"job_id,omitempty"`
	ExpectedUpdateCount int                 `json:"expected_update_count,omitempty"`
}

// NewReport returns a report with non-nil slices (MCP output schemas require arrays).
func NewReport(total int) *Report {
	return &Report{
		Total:       total,
		Errors:      []string{},
		FailedRows:  []RowOutcome{},
		SkippedRows: []RowOutcome{},
		UpdatedRows: []RowOutcome{},
		Deferred:    []DeferredOperation{},
	}
}

// PollResult is the answer to one poll of a bulk job.
type PollResult struct {
	JobID       string        `json:"job_id"`
	Status      BulkJobStatus `json:"status"`
	ObjectCount int64         `json:"object_count"`
	Done        bool          `json:"done"`
	Error       string        `json:"error,omitempty"` // run-level failure
	Report      *Report       `json:"report,omitempty"`
}

// ShopContext identifies the shop and caller a run acts for.
type ShopContext struct {
	Shop      string `json:"shop"`
	Actor     string `json:"actor,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
