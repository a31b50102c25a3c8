// Package adapter defines the interfaces the reconciliation engine needs from the commerce platform.
// The Shopify client implements them; Mock implements them for tests.
package adapter

import (
	"context"
	"io"

	"b2b-pricing/internal/model"
)

// Catalog reads and writes variant prices.
type Catalog interface {
	// ListVariants returns one page of variants after cursor ("" for the first page).
	// Each variant carries its special-price metafield value and handle when present.
	ListVariants(ctx context.Context, cursor string) (*model.VariantPage, error)

	// UpdateVariants applies updates to variants of a single product in one call.
	// User errors are returned separately from transport errors: a non-nil error
	// means the call itself failed and nothing is known about individual variants.
	UpdateVariants(ctx context.Context, productID string, updates []model.VariantUpdate) ([]model.UserError, error)

	// DeleteSpecialPrices removes the special-price metafield from the given variants.
	DeleteSpecialPrices(ctx context.Context, variantIDs []string) ([]model.UserError, error)
}

// Billing resolves the merchant's current subscription.
type Billing interface {
	// ActivePlanName returns the name of the first active subscription, or "" when there is none.
	ActivePlanName(ctx context.Context) (string, error)
}

// BulkRunner drives the platform's asynchronous bulk-operation protocol.
type BulkRunner interface {
	// StageUpload reserves an upload target for a JSONL variables file.
	StageUpload(ctx context.Context, filename string) (*model.StagedTarget, error)

	// Upload sends payload to a staged target as multipart form data.
	Upload(ctx context.Context, target *model.StagedTarget, filename string, payload []byte) error

	// RunBulkMutation submits the mutation template against a staged file and returns the job.
	RunBulkMutation(ctx context.Context, mutation, stagedPath string) (*model.BulkJob, error)

	// GetBulkJob returns the job state. A job the platform does not know returns status NONE.
	GetBulkJob(ctx context.Context, jobID string) (*model.BulkJob, error)

	// CurrentBulkJob returns the shop's most recent bulk mutation, or nil when none exists.
	CurrentBulkJob(ctx context.Context) (*model.BulkJob, error)

	// CancelBulkJob asks the platform to cancel a running job.
	CancelBulkJob(ctx context.Context, jobID string) error

	// FetchResult opens the job's result file. Callers must close the reader.
	FetchResult(ctx context.Context, url string) (io.ReadCloser, error)
}

// Gateway is the full platform surface used by the service.
type Gateway interface {
	Catalog
	Billing
	BulkRunner
}
