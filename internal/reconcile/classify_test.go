package reconcile

import (
	"testing"

	"b2b-pricing/internal/model"
)

func ptr[T any](v T) *T { return &v }

func catalog() *Snapshot {
	return NewSnapshot([]model.VariantSnapshot{
		{ID: "v1", SKU: "A", ProductID: "p1", Price: 10, CompareAtPrice: ptr(15.0)},
		{ID: "v2", SKU: "B", ProductID: "p1", Price: 20, SpecialPrice: ptr(18.0), SpecialPriceHandle: "mf2"},
		{ID: "v3", SKU: "C", ProductID: "p2", Price: 30, SpecialPrice: ptr(0.0), SpecialPriceHandle: "mf3"},
		{ID: "v4", SKU: "", ProductID: "p2", Price: 5},
	})
}

func TestClassify_IgnoredRows(t *testing.T) {
	c := NewClassifier(catalog())
	for _, sku := range []string{"", "   ", "SKU", "sku"} {
		if got := c.Classify(model.DesiredRow{SKU: sku, Price: ptr("1")}); got.Outcome != OutcomeIgnored {
			t.Errorf("Classify(SKU %q) outcome = %v, want ignored", sku, got.Outcome)
		}
	}
}

func TestClassify_Failures(t *testing.T) {
	tests := []struct {
		name string
		row  model.DesiredRow
		want string
	}{
		{"unknown SKU", model.DesiredRow{SKU: "ZZZ", Price: ptr("1")}, ReasonNotFound},
		{"invalid price", model.DesiredRow{SKU: "A", Price: ptr("abc"), SpecialPrice: ptr("5")}, ReasonInvalidPrice},
		{"invalid compare-at", model.DesiredRow{SKU: "A", Price: ptr("11"), CompareAtPrice: ptr("1,5")}, ReasonInvalidCompareAt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewClassifier(catalog()).Classify(tt.row)
			if got.Outcome != OutcomeFailed {
				t.Fatalf("outcome = %v, want failed", got.Outcome)
			}
			if got.Reason != tt.want {
				t.Errorf("reason = %q, want %q", got.Reason, tt.want)
			}
			if got.Operation != nil {
				t.Error("failed rows must not produce an operation")
			}
		})
	}
}

func TestClassify_DuplicateSKU(t *testing.T) {
	c := NewClassifier(catalog())

	first := c.Classify(model.DesiredRow{SKU: "A", Price: ptr("12")})
	if first.Outcome != OutcomeChanged {
		t.Fatalf("first outcome = %v, want changed", first.Outcome)
	}

	second := c.Classify(model.DesiredRow{SKU: " A ", Price: ptr("13")})
	if second.Outcome != OutcomeFailed || second.Reason != ReasonDuplicateSKU {
		t.Errorf("second = %+v, want duplicate failure", second)
	}
}

func TestClassify_DuplicateAfterInvalidFirstRow(t *testing.T) {
	c := NewClassifier(catalog())

	if got := c.Classify(model.DesiredRow{SKU: "A", Price: ptr("bad")}); got.Reason != ReasonInvalidPrice {
		t.Fatalf("first reason = %q", got.Reason)
	}
	if got := c.Classify(model.DesiredRow{SKU: "A", Price: ptr("12")}); got.Reason != ReasonDuplicateSKU {
		t.Errorf("second reason = %q, want %q", got.Reason, ReasonDuplicateSKU)
	}
}

func TestClassify_PriceEpsilon(t *testing.T) {
	tests := []struct {
		price string
		want  Outcome
	}{
		{"10", OutcomeUnchanged},
		{"10.0005", OutcomeUnchanged},
		{"10.002", OutcomeChanged},
		{"", OutcomeUnchanged},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			got := NewClassifier(catalog()).Classify(model.DesiredRow{SKU: "A", Price: ptr(tt.price)})
			if got.Outcome != tt.want {
				t.Errorf("outcome = %v, want %v", got.Outcome, tt.want)
			}
			if got.Outcome == OutcomeUnchanged && got.Reason != ReasonUnchanged {
				t.Errorf("reason = %q, want %q", got.Reason, ReasonUnchanged)
			}
		})
	}
}

func TestClassify_CompareAt(t *testing.T) {
	t.Run("null clears existing", func(t *testing.T) {
		got := NewClassifier(catalog()).Classify(model.DesiredRow{SKU: "A", CompareAtPrice: ptr("NULL")})
		if got.Outcome != OutcomeChanged {
			t.Fatalf("outcome = %v, want changed", got.Outcome)
		}
		if !got.Operation.CompareAtChanged || got.Operation.NewCompareAt != nil {
			t.Errorf("op = %+v, want compare-at clear", got.Operation)
		}
	})

	t.Run("null on absent is a no-op", func(t *testing.T) {
		got := NewClassifier(catalog()).Classify(model.DesiredRow{SKU: "B", CompareAtPrice: ptr("null")})
		if got.Outcome != OutcomeUnchanged {
			t.Errorf("outcome = %v, want unchanged", got.Outcome)
		}
	})

	t.Run("set on absent", func(t *testing.T) {
		got := NewClassifier(catalog()).Classify(model.DesiredRow{SKU: "B", CompareAtPrice: ptr("25")})
		if got.Outcome != OutcomeChanged || got.Operation.NewCompareAt == nil || *got.Operation.NewCompareAt != 25 {
			t.Errorf("got = %+v", got)
		}
	})
}

func TestClassify_SpecialPriceOps(t *testing.T) {
	tests := []struct {
		name        string
		sku         string
		special     *string
		wantOutcome Outcome
		wantOp      model.SpecialPriceOp
		wantValue   float64
	}{
		{"absent to set is addition", "A", ptr("8"), OutcomeChanged, model.SpecialPriceAddition, 8},
		{"zero to set is addition", "C", ptr("25"), OutcomeChanged, model.SpecialPriceAddition, 25},
		{"set to other is modification", "B", ptr("17"), OutcomeChanged, model.SpecialPriceModification, 17},
		{"set to same is no-op", "B", ptr("18.0004"), OutcomeUnchanged, model.SpecialPriceNone, 0},
		{"empty clears set", "B", ptr(""), OutcomeChanged, model.SpecialPriceDeletion, 0},
		{"null clears set", "B", ptr("null"), OutcomeChanged, model.SpecialPriceDeletion, 0},
		{"set to zero is deletion", "B", ptr("0"), OutcomeChanged, model.SpecialPriceDeletion, 0},
		{"clear on absent is no-op", "A", ptr("null"), OutcomeUnchanged, model.SpecialPriceNone, 0},
		{"clear on stored zero is no-op", "C", ptr(""), OutcomeUnchanged, model.SpecialPriceNone, 0},
		{"garbage is ignored", "B", ptr("n/a"), OutcomeUnchanged, model.SpecialPriceNone, 0},
		{"zero on absent writes without a slot", "A", ptr("0"), OutcomeChanged, model.SpecialPriceNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewClassifier(catalog()).Classify(model.DesiredRow{SKU: tt.sku, SpecialPrice: tt.special})
			if got.Outcome != tt.wantOutcome {
				t.Fatalf("outcome = %v, want %v", got.Outcome, tt.wantOutcome)
			}
			if got.Operation == nil {
				return
			}
			if got.Operation.SpecialPriceOp != tt.wantOp {
				t.Errorf("op = %s, want %s", got.Operation.SpecialPriceOp, tt.wantOp)
			}
			if got.Operation.NewSpecialPrice != tt.wantValue {
				t.Errorf("value = %v, want %v", got.Operation.NewSpecialPrice, tt.wantValue)
			}
		})
	}
}

func TestClassify_CarriesHandleAndProduct(t *testing.T) {
	got := NewClassifier(catalog()).Classify(model.DesiredRow{SKU: "B", Price: ptr("21"), SpecialPrice: ptr("19")})
	if got.Outcome != OutcomeChanged {
		t.Fatalf("outcome = %v", got.Outcome)
	}
	op := got.Operation
	if op.VariantID != "v2" || op.ProductID != "p1" || op.SpecialPriceHandle != "mf2" {
		t.Errorf("op = %+v", op)
	}
	if !op.PriceChanged || op.NewPrice != 21 {
		t.Errorf("price change = %v %v", op.PriceChanged, op.NewPrice)
	}
}

func TestSnapshot_Index(t *testing.T) {
	s := catalog()

	if s.SpecialPriceCount() != 1 {
		t.Errorf("SpecialPriceCount() = %d, want 1 (zero is not set)", s.SpecialPriceCount())
	}
	if _, ok := s.BySKU(" B "); !ok {
		t.Error("BySKU should trim")
	}
	if _, ok := s.ByID("v4"); !ok {
		t.Error("SKU-less variant should be reachable by id")
	}
	if _, ok := s.BySKU(""); ok {
		t.Error("empty SKU must not match")
	}
}
