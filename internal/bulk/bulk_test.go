package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"b2b-pricing/internal/adapter"
	"b2b-pricing/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func priceOp(productID, variantID string, price float64) model.ClassifiedOperation {
	return model.ClassifiedOperation{
		ProductID:    productID,
		VariantID:    variantID,
		PriceChanged: true,
		NewPrice:     price,
	}
}

func TestGroupByProduct(t *testing.T) {
	ops := []model.ClassifiedOperation{
		priceOp("p2", "v21", 1),
		priceOp("p1", "v11", 2),
		priceOp("p2", "v22", 3),
	}

	batches := GroupByProduct(ops)

	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if batches[0].ProductID != "p2" || batches[1].ProductID != "p1" {
		t.Errorf("product order = %s,%s, want p2,p1", batches[0].ProductID, batches[1].ProductID)
	}
	if len(batches[0].Operations) != 2 || batches[0].Operations[1].VariantID != "v22" {
		t.Errorf("p2 operations = %+v", batches[0].Operations)
	}
}

func TestPayloadBuilder_Build(t *testing.T) {
	batches := GroupByProduct([]model.ClassifiedOperation{
		priceOp("gid://shopify/Product/1", "gid://shopify/ProductVariant/11", 9.5),
		priceOp("gid://shopify/Product/2", "gid://shopify/ProductVariant/21", 4),
		priceOp("gid://shopify/Product/1", "gid://shopify/ProductVariant/12", 10),
	})

	b := NewPayload(model.DefaultSpecialPriceField).AddBatches(batches).AddBatch(ProductBatch{ProductID: "empty"})
	if b.LineCount() != 2 {
		t.Fatalf("LineCount() = %d, want 2 (empty batch ignored)", b.LineCount())
	}

	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), data)
	}

	var first struct {
		ProductID string                   `json:"productId"`
		Variants  []map[string]interface{} `json:"variants"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if first.ProductID != "gid://shopify/Product/1" {
		t.Errorf("productId = %s", first.ProductID)
	}
	if len(first.Variants) != 2 {
		t.Fatalf("variants = %d, want 2", len(first.Variants))
	}
	if first.Variants[0]["price"] != "9.5" || first.Variants[1]["price"] != "10" {
		t.Errorf("prices = %v, %v", first.Variants[0]["price"], first.Variants[1]["price"])
	}
}

func TestPayloadBuilder_Empty(t *testing.T) {
	b := NewPayload(model.DefaultSpecialPriceField)
	if b.HasLines() {
		t.Error("new builder should have no lines")
	}
	data, err := b.Build()
	if err != nil || len(data) != 0 {
		t.Errorf("Build() = %q, %v, want empty", data, err)
	}
}

func TestParseResults(t *testing.T) {
	input := strings.Join([]string{
		`{"data":{"productVariantsBulkUpdate":{"productVariants":[{"id":"v1"}],"userErrors":[]}},"__lineNumber":0}`,
		``,
		`{"data":{"productVariantsBulkUpdate":{"productVariants":null,"userErrors":[{"field":["variants","0","price"],"message":"Price must be greater than or equal to 0"},{"message":"second"}]}},"__lineNumber":1}`,
		`{"productVariantsBulkUpdate":{"userErrors":[{"message":"Product does not exist"}]}}`,
		`not json`,
		`{"errors":[{"message":"internal"}]}`,
	}, "\n")

	got, err := ParseResults(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseResults() error: %v", err)
	}

	want := []string{
		"line 2: Price must be greater than or equal to 0",
		"Product does not exist",
	}
	if len(got) != len(want) {
		t.Fatalf("ParseResults() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDriver_Submit(t *testing.T) {
	var (
		calls      []string
		uploaded   []byte
		stagedPath string
	)

	mock := &adapter.Mock{
		CurrentBulkJobFunc: func(ctx context.Context) (*model.BulkJob, error) {
			calls = append(calls, "current")
			return &model.BulkJob{ID: "old", Status: model.BulkJobRunning}, nil
		},
		CancelBulkJobFunc: func(ctx context.Context, jobID string) error {
			calls = append(calls, "cancel:"+jobID)
			return nil
		},
		StageUploadFunc: func(ctx context.Context, filename string) (*model.StagedTarget, error) {
			calls = append(calls, "stage:"+filename)
			return &model.StagedTarget{
				URL:        "https://uploads.example.com",
				Parameters: []model.StagedParameter{{Name: "key", Value: "tmp/1/price_updates.jsonl"}},
			}, nil
		},
		UploadFunc: func(ctx context.Context, target *model.StagedTarget, filename string, payload []byte) error {
			calls = append(calls, "upload")
			uploaded = payload
			return nil
		},
		RunBulkMutationFunc: func(ctx context.Context, mutation, path string) (*model.BulkJob, error) {
			calls = append(calls, "run")
			stagedPath = path
			if !strings.Contains(mutation, "productVariantsBulkUpdate") {
				t.Errorf("mutation = %q", mutation)
			}
			return &model.BulkJob{ID: "gid://shopify/BulkOperation/7", Status: model.BulkJobCreated}, nil
		},
	}

	d := NewDriver(mock, model.DefaultSpecialPriceField, testLogger())
	job, err := d.Submit(context.Background(), GroupByProduct([]model.ClassifiedOperation{
		priceOp("p1", "v1", 5),
	}))
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	if job.ID != "gid://shopify/BulkOperation/7" {
		t.Errorf("job.ID = %s", job.ID)
	}
	wantCalls := []string{"current", "cancel:old", "stage:price_updates.jsonl", "upload", "run"}
	if strings.Join(calls, ",") != strings.Join(wantCalls, ",") {
		t.Errorf("calls = %v, want %v", calls, wantCalls)
	}
	if stagedPath != "tmp/1/price_updates.jsonl" {
		t.Errorf("staged path = %q", stagedPath)
	}
	if !bytes.Contains(uploaded, []byte(`"productId":"p1"`)) {
		t.Errorf("uploaded payload = %s", uploaded)
	}
}

func TestDriver_SubmitProceedsWhenCancelFails(t *testing.T) {
	ran := false
	mock := &adapter.Mock{
		CurrentBulkJobFunc: func(ctx context.Context) (*model.BulkJob, error) {
			return nil, errors.New("throttled")
		},
		RunBulkMutationFunc: func(ctx context.Context, mutation, path string) (*model.BulkJob, error) {
			ran = true
			return &model.BulkJob{ID: "j", Status: model.BulkJobCreated}, nil
		},
	}

	d := NewDriver(mock, model.DefaultSpecialPriceField, testLogger())
	if _, err := d.Submit(context.Background(), GroupByProduct([]model.ClassifiedOperation{priceOp("p", "v", 1)})); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if !ran {
		t.Error("job should be submitted after a failed pre-check")
	}
}

func TestDriver_SubmitStagingErrors(t *testing.T) {
	tests := []struct {
		name string
		mock *adapter.Mock
	}{
		{
			name: "stage fails",
			mock: &adapter.Mock{
				StageUploadFunc: func(ctx context.Context, filename string) (*model.StagedTarget, error) {
					return nil, errors.New("access denied")
				},
			},
		},
		{
			name: "missing key",
			mock: &adapter.Mock{
				StageUploadFunc: func(ctx context.Context, filename string) (*model.StagedTarget, error) {
					return &model.StagedTarget{URL: "https://uploads.example.com"}, nil
				},
			},
		},
		{
			name: "upload fails",
			mock: &adapter.Mock{
				UploadFunc: func(ctx context.Context, target *model.StagedTarget, filename string, payload []byte) error {
					return errors.New("403")
				},
			},
		},
		{
			name: "submit fails",
			mock: &adapter.Mock{
				RunBulkMutationFunc: func(ctx context.Context, mutation, path string) (*model.BulkJob, error) {
					return nil, errors.New("a bulk mutation is already running")
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDriver(tt.mock, model.DefaultSpecialPriceField, testLogger())
			_, err := d.Submit(context.Background(), GroupByProduct([]model.ClassifiedOperation{priceOp("p", "v", 1)}))
			if !errors.Is(err, model.ErrStaging) {
				t.Errorf("Submit() error = %v, want ErrStaging", err)
			}
		})
	}
}

func TestDriver_SubmitNothing(t *testing.T) {
	d := NewDriver(&adapter.Mock{}, model.DefaultSpecialPriceField, testLogger())
	if _, err := d.Submit(context.Background(), nil); !errors.Is(err, model.ErrInvalidRequest) {
		t.Errorf("Submit(nil) error = %v, want ErrInvalidRequest", err)
	}
}

func TestDriver_Poll(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		mock := &adapter.Mock{
			GetBulkJobFunc: func(ctx context.Context, id string) (*model.BulkJob, error) {
				return &model.BulkJob{ID: id, Status: model.BulkJobRunning, ObjectCount: 40}, nil
			},
			FetchResultFunc: func(ctx context.Context, url string) (io.ReadCloser, error) {
				t.Error("result should not be fetched while running")
				return nil, nil
			},
		}
		out, err := NewDriver(mock, model.DefaultSpecialPriceField, testLogger()).Poll(context.Background(), "j")
		if err != nil {
			t.Fatalf("Poll() error: %v", err)
		}
		if out.Job.ObjectCount != 40 || len(out.RowErrors) != 0 {
			t.Errorf("Poll() = %+v", out)
		}
	})

	t.Run("completed with row errors", func(t *testing.T) {
		mock := &adapter.Mock{
			GetBulkJobFunc: func(ctx context.Context, id string) (*model.BulkJob, error) {
				return &model.BulkJob{ID: id, Status: model.BulkJobCompleted, URL: "https://results.example.com/r.jsonl"}, nil
			},
			FetchResultFunc: func(ctx context.Context, url string) (io.ReadCloser, error) {
				return io.NopCloser(strings.NewReader(
					`{"productVariantsBulkUpdate":{"userErrors":[{"message":"Variant not found"}]}}` + "\n")), nil
			},
		}
		out, err := NewDriver(mock, model.DefaultSpecialPriceField, testLogger()).Poll(context.Background(), "j")
		if err != nil {
			t.Fatalf("Poll() error: %v", err)
		}
		if len(out.RowErrors) != 1 || out.RowErrors[0] != "Variant not found" {
			t.Errorf("RowErrors = %v", out.RowErrors)
		}
	})

	t.Run("transient fetch error", func(t *testing.T) {
		mock := &adapter.Mock{
			GetBulkJobFunc: func(ctx context.Context, id string) (*model.BulkJob, error) {
				return &model.BulkJob{ID: id, Status: model.BulkJobCompleted, URL: "https://results.example.com/r.jsonl"}, nil
			},
			FetchResultFunc: func(ctx context.Context, url string) (io.ReadCloser, error) {
				return nil, errors.New("connection reset")
			},
		}
		if _, err := NewDriver(mock, model.DefaultSpecialPriceField, testLogger()).Poll(context.Background(), "j"); err == nil {
			t.Error("Poll() should return the fetch error")
		}
	})
}
