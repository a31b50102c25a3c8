package model

import (
	"encoding/json"
	"testing"
)

func TestVariantUpdate_MarshalJSON(t *testing.T) {
	price := "12.5"
	compareAt := "20"

	tests := []struct {
		name   string
		update VariantUpdate
		want   string
	}{
		{
			name:   "price only",
			update: VariantUpdate{ID: "gid://shopify/ProductVariant/1", Price: &price},
			want:   `{"id":"gid://shopify/ProductVariant/1","price":"12.5"}`,
		},
		{
			name:   "clear compare-at sends null",
			update: VariantUpdate{ID: "v1", ClearCompareAt: true},
			want:   `{"compareAtPrice":null,"id":"v1"}`,
		},
		{
			name:   "clear wins over value",
			update: VariantUpdate{ID: "v1", CompareAtPrice: &compareAt, ClearCompareAt: true},
			want:   `{"compareAtPrice":null,"id":"v1"}`,
		},
		{
			name: "existing metafield by id",
			update: VariantUpdate{
				ID:        "v1",
				Metafield: &MetafieldInput{ID: "gid://shopify/Metafield/9", Value: "8", Type: "number_decimal"},
			},
			want: `{"id":"v1","metafields":[{"id":"gid://shopify/Metafield/9","value":"8","type":"number_decimal"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.update)
			if err != nil {
				t.Fatalf("Marshal() error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifiedOperation_Update(t *testing.T) {
	compareAt := 30.0

	t.Run("new metafield uses namespace and key", func(t *testing.T) {
		op := ClassifiedOperation{
			VariantID:           "v1",
			PriceChanged:        true,
			NewPrice:            25,
			CompareAtChanged:    true,
			NewCompareAt:        &compareAt,
			SpecialPriceChanged: true,
			SpecialPriceOp:      SpecialPriceAddition,
			NewSpecialPrice:     19.99,
		}
		u := op.Update(DefaultSpecialPriceField)

		if u.Price == nil || *u.Price != "25" {
			t.Errorf("Price = %v, want 25", u.Price)
		}
		if u.CompareAtPrice == nil || *u.CompareAtPrice != "30" {
			t.Errorf("CompareAtPrice = %v, want 30", u.CompareAtPrice)
		}
		if u.Metafield == nil {
			t.Fatal("Metafield should be set")
		}
		if u.Metafield.Namespace != "$app" || u.Metafield.Key != "gd_b2b_price" || u.Metafield.ID != "" {
			t.Errorf("Metafield = %+v, want namespace/key addressing", u.Metafield)
		}
		if u.Metafield.Value != "19.99" {
			t.Errorf("Metafield.Value = %q, want 19.99", u.Metafield.Value)
		}
	})

	t.Run("existing metafield uses handle", func(t *testing.T) {
		op := ClassifiedOperation{
			VariantID:           "v1",
			SpecialPriceChanged: true,
			SpecialPriceOp:      SpecialPriceDeletion,
			SpecialPriceHandle:  "gid://shopify/Metafield/3",
		}
		u := op.Update(DefaultSpecialPriceField)

		if u.Price != nil || u.CompareAtPrice != nil || u.ClearCompareAt {
			t.Errorf("unchanged fields should not be sent: %+v", u)
		}
		if u.Metafield == nil || u.Metafield.ID != "gid://shopify/Metafield/3" {
			t.Fatalf("Metafield = %+v, want id addressing", u.Metafield)
		}
		if u.Metafield.Value != "0" {
			t.Errorf("Metafield.Value = %q, want 0 for a cleared price", u.Metafield.Value)
		}
	})

	t.Run("compare-at clear", func(t *testing.T) {
		op := ClassifiedOperation{VariantID: "v1", CompareAtChanged: true}
		if u := op.Update(DefaultSpecialPriceField); !u.ClearCompareAt {
			t.Error("ClearCompareAt should be true when NewCompareAt is nil")
		}
	})
}

func TestStagedTarget_Path(t *testing.T) {
	target := &StagedTarget{
		URL: "https://shopify-staged-uploads.storage.googleapis.com/",
		Parameters: []StagedParameter{
			{Name: "Content-Type", Value: "text/jsonl"},
			{Name: "key", Value: "tmp/21759409/bulk/price_updates.jsonl"},
		},
	}
	if got := target.Path(); got != "tmp/21759409/bulk/price_updates.jsonl" {
		t.Errorf("Path() = %q", got)
	}

	if got := (&StagedTarget{}).Path(); got != "" {
		t.Errorf("Path() without key = %q, want empty", got)
	}
}

func TestBulkJobStatus_InProgress(t *testing.T) {
	for status, want := range map[BulkJobStatus]bool{
		BulkJobCreated:   true,
		BulkJobRunning:   true,
		BulkJobCompleted: false,
		BulkJobFailed:    false,
		BulkJobCanceled:  false,
		BulkJobNone:      false,
	} {
		if got := status.InProgress(); got != want {
			t.Errorf("%s.InProgress() = %v, want %v", status, got, want)
		}
	}
}

func TestVariantSnapshot_HasSpecialPrice(t *testing.T) {
	zero, neg, pos := 0.0, -1.0, 5.0
	tests := []struct {
		name  string
		value *float64
		want  bool
	}{
		{"absent", nil, false},
		{"zero", &zero, false},
		{"negative", &neg, false},
		{"positive", &pos, true},
	}
	for _, tt := range tests {
		v := VariantSnapshot{SpecialPrice: tt.value}
		if got := v.HasSpecialPrice(); got != tt.want {
			t.Errorf("%s: HasSpecialPrice() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
