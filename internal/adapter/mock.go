package adapter

import (
	"context"
	"io"
	"strings"

	"b2b-pricing/internal/model"
)

// Mock implements Gateway for testing.
// Each method can be configured via function fields.
type Mock struct {
	ListVariantsFunc        func(ctx context.Context, cursor string) (*model.VariantPage, error)
	UpdateVariantsFunc      func(ctx context.Context, productID string, updates []model.VariantUpdate) ([]model.UserError, error)
	DeleteSpecialPricesFunc func(ctx context.Context, variantIDs []string) ([]model.UserError, error)
	ActivePlanNameFunc      func(ctx context.Context) (string, error)
	StageUploadFunc         func(ctx context.Context, filename string) (*model.StagedTarget, error)
	UploadFunc              func(ctx context.Context, target *model.StagedTarget, filename string, payload []byte) error
	RunBulkMutationFunc     func(ctx context.Context, mutation, stagedPath string) (*model.BulkJob, error)
	GetBulkJobFunc          func(ctx context.Context, jobID string) (*model.BulkJob, error)
	CurrentBulkJobFunc      func(ctx context.Context) (*model.BulkJob, error)
	CancelBulkJobFunc       func(ctx context.Context, jobID string) error
	FetchResultFunc         func(ctx context.Context, url string) (io.ReadCloser, error)
}

// ListVariants calls the configured ListVariantsFunc or returns an empty catalog.
func (m *Mock) ListVariants(ctx context.Context, cursor string) (*model.VariantPage, error) {
	if m.ListVariantsFunc != nil {
		return m.ListVariantsFunc(ctx, cursor)
	}
	return &model.VariantPage{}, nil
}

// UpdateVariants calls the configured UpdateVariantsFunc or succeeds.
func (m *Mock) UpdateVariants(ctx context.Context, productID string, updates []model.VariantUpdate) ([]model.UserError, error) {
	if m.UpdateVariantsFunc != nil {
		return m.UpdateVariantsFunc(ctx, productID, updates)
	}
	return nil, nil
}

// DeleteSpecialPrices calls the configured DeleteSpecialPricesFunc or succeeds.
func (m *Mock) DeleteSpecialPrices(ctx context.Context, variantIDs []string) ([]model.UserError, error) {
	if m.DeleteSpecialPricesFunc != nil {
		return m.DeleteSpecialPricesFunc(ctx, variantIDs)
	}
	return nil, nil
}

// ActivePlanName calls the configured ActivePlanNameFunc or reports no subscription.
func (m *Mock) ActivePlanName(ctx context.Context) (string, error) {
	if m.ActivePlanNameFunc != nil {
		return m.ActivePlanNameFunc(ctx)
	}
	return "", nil
}

// StageUpload calls the configured StageUploadFunc or returns a fixed target.
func (m *Mock) StageUpload(ctx context.Context, filename string) (*model.StagedTarget, error) {
	if m.StageUploadFunc != nil {
		return m.StageUploadFunc(ctx, filename)
	}
	return &model.StagedTarget{
		URL:        "https://uploads.example.com/",
		Parameters: []model.StagedParameter{{Name: "key", Value: "tmp/" + filename}},
	}, nil
}

// Upload calls the configured UploadFunc or succeeds.
func (m *Mock) Upload(ctx context.Context, target *model.StagedTarget, filename string, payload []byte) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, target, filename, payload)
	}
	return nil
}

// RunBulkMutation calls the configured RunBulkMutationFunc or returns a created job.
func (m *Mock) RunBulkMutation(ctx context.Context, mutation, stagedPath string) (*model.BulkJob, error) {
	if m.RunBulkMutationFunc != nil {
		return m.RunBulkMutationFunc(ctx, mutation, stagedPath)
	}
	return &model.BulkJob{ID: "gid://shopify/BulkOperation/1", Status: model.BulkJobCreated}, nil
}

// GetBulkJob calls the configured GetBulkJobFunc or reports an unknown job.
func (m *Mock) GetBulkJob(ctx context.Context, jobID string) (*model.BulkJob, error) {
	if m.GetBulkJobFunc != nil {
		return m.GetBulkJobFunc(ctx, jobID)
	}
	return &model.BulkJob{ID: jobID, Status: model.BulkJobNone}, nil
}

// CurrentBulkJob calls the configured CurrentBulkJobFunc or reports no job.
func (m *Mock) CurrentBulkJob(ctx context.Context) (*model.BulkJob, error) {
	if m.CurrentBulkJobFunc != nil {
		return m.CurrentBulkJobFunc(ctx)
	}
	return nil, nil
}

// CancelBulkJob calls the configured CancelBulkJobFunc or succeeds.
func (m *Mock) CancelBulkJob(ctx context.Context, jobID string) error {
	if m.CancelBulkJobFunc != nil {
		return m.CancelBulkJobFunc(ctx, jobID)
	}
	return nil
}

// FetchResult calls the configured FetchResultFunc or returns an empty file.
func (m *Mock) FetchResult(ctx context.Context, url string) (io.ReadCloser, error) {
	if m.FetchResultFunc != nil {
		return m.FetchResultFunc(ctx, url)
	}
	return io.NopCloser(strings.NewReader("")), nil
}

// Verify Mock implements Gateway interface at compile time.
var _ Gateway = (*Mock)(nil)
